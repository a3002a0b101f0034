package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"minichat/internal/domain"
	"minichat/internal/localstore"
)

const (
	keyPrefix = "directory.user."
	indexKey  = "directory.index"
)

// ErrLocalCache envuelve cualquier fallo del KV local. Nunca es fatal.
var ErrLocalCache = errors.New("local cache error")

// Directory es el cache local id de usuario -> ultimo email conocido.
// No es autoritativo: solo sirve para resolver nombres a mostrar.
type Directory struct {
	store      localstore.Store
	logger     *zap.Logger
	maxEntries int
	mu         sync.Mutex
}

// New crea el directorio. maxEntries <= 0 deja el cache sin limite.
func New(store localstore.Store, logger *zap.Logger, maxEntries int) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, logger: logger, maxEntries: maxEntries}
}

// Upsert guarda email y last_seen para el usuario.
func (d *Directory) Upsert(userID, email string, seenAt time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	raw, err := json.Marshal(domain.DirectoryEntry{Email: email, LastSeen: seenAt.UTC()})
	if err != nil {
		return d.fail("encode entry", userID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.Set(keyPrefix+userID, string(raw)); err != nil {
		return d.fail("write entry", userID, err)
	}
	if d.maxEntries > 0 {
		if err := d.trackAndEvict(userID); err != nil {
			return d.fail("update index", userID, err)
		}
	}
	return nil
}

// Lookup devuelve la entrada cacheada. Un fallo del store cuenta como ausente.
func (d *Directory) Lookup(userID string) (domain.DirectoryEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok, err := d.read(userID)
	if err != nil {
		_ = d.fail("read entry", userID, err)
		return domain.DirectoryEntry{}, false
	}
	return entry, ok
}

func (d *Directory) read(userID string) (domain.DirectoryEntry, bool, error) {
	raw, ok, err := d.store.Get(keyPrefix + userID)
	if err != nil || !ok || raw == "" {
		return domain.DirectoryEntry{}, false, err
	}
	var entry domain.DirectoryEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.DirectoryEntry{}, false, err
	}
	entry.UserID = userID
	return entry, true, nil
}

// trackAndEvict registra userID en el indice y expulsa la entrada con el
// last_seen mas viejo mientras se exceda maxEntries.
func (d *Directory) trackAndEvict(userID string) error {
	ids, err := d.loadIndex()
	if err != nil {
		return err
	}
	found := false
	for _, id := range ids {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, userID)
	}

	for len(ids) > d.maxEntries {
		oldest := -1
		var oldestSeen time.Time
		for i, id := range ids {
			if id == userID {
				continue
			}
			entry, ok, err := d.read(id)
			if err != nil {
				return err
			}
			if !ok {
				oldest, oldestSeen = i, time.Time{}
				break
			}
			if oldest < 0 || entry.LastSeen.Before(oldestSeen) {
				oldest, oldestSeen = i, entry.LastSeen
			}
		}
		if oldest < 0 {
			break
		}
		if err := d.remove(ids[oldest]); err != nil {
			return err
		}
		d.logger.Debug("directory entry evicted", zap.String("user_id", ids[oldest]))
		ids = append(ids[:oldest], ids[oldest+1:]...)
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return d.store.Set(indexKey, string(raw))
}

func (d *Directory) loadIndex() ([]string, error) {
	raw, ok, err := d.store.Get(indexKey)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (d *Directory) remove(userID string) error {
	if deleter, ok := d.store.(interface{ Delete(string) error }); ok {
		return deleter.Delete(keyPrefix + userID)
	}
	return d.store.Set(keyPrefix+userID, "")
}

func (d *Directory) fail(op, userID string, err error) error {
	d.logger.Warn("local directory failure", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrLocalCache, op, err)
}
