package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"minichat/internal/client"
	"minichat/internal/domain"
)

var (
	ErrIdentityLookup = errors.New("identity lookup failed")
	ErrFetch          = errors.New("fetch messages failed")
	ErrInsert         = errors.New("insert message failed")
)

const (
	orderColumn      = "created_at"
	fallbackIDLength = 6
	youLabel         = "You"
)

// UserDirectory es el cache local de emails por usuario.
type UserDirectory interface {
	Upsert(userID, email string, seenAt time.Time) error
	Lookup(userID string) (domain.DirectoryEntry, bool)
}

// Entry es un mensaje listo para mostrar.
type Entry struct {
	Message     domain.Message
	DisplayName string
}

// Snapshot es el estado renderizable de la vista.
type Snapshot struct {
	Identity  *domain.Identity
	Entries   []Entry
	Draft     string
	Loading   bool
	Err       error
	CanSubmit bool
}

// MessageView mantiene la lista de mensajes, el borrador y el loop de refresco.
//
// Cada fetch lleva un numero de secuencia: una respuesta se descarta si se
// emitio un fetch mas nuevo mientras tanto. Loading refleja la cantidad de
// fetches en vuelo. Tras Close ninguna respuesta ni notificacion modifica el estado.
type MessageView struct {
	sessions  client.SessionStore
	table     client.MessageTable
	feed      client.ChangeFeed
	directory UserDirectory
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	identity *domain.Identity
	messages []domain.Message
	draft    string
	err      error
	seq      uint64
	inflight int
	sub      client.Subscription
	closed   bool
	baseCtx  context.Context

	renderMu sync.Mutex
	onRender func(Snapshot)
}

func NewMessageView(
	sessions client.SessionStore,
	table client.MessageTable,
	feed client.ChangeFeed,
	directory UserDirectory,
	logger *zap.Logger,
) *MessageView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageView{
		sessions:  sessions,
		table:     table,
		feed:      feed,
		directory: directory,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		baseCtx:   context.Background(),
	}
}

// OnRender registra el hook que recibe un Snapshot tras cada cambio de estado.
// El hook no debe llamar de vuelta a la vista de forma sincronica.
func (v *MessageView) OnRender(fn func(Snapshot)) {
	v.renderMu.Lock()
	v.onRender = fn
	v.renderMu.Unlock()
}

// Initialize resuelve la identidad, se suscribe al feed y hace el fetch
// inicial en paralelo. Los fallos se registran y se devuelven unidos; la
// vista sigue usable igual.
func (v *MessageView) Initialize(ctx context.Context) error {
	v.mu.Lock()
	v.baseCtx = context.WithoutCancel(ctx)
	v.mu.Unlock()

	var wg sync.WaitGroup
	var identityErr, subErr, fetchErr error
	wg.Add(3)
	go func() {
		defer wg.Done()
		identityErr = v.resolveIdentity(ctx)
	}()
	go func() {
		defer wg.Done()
		subErr = v.subscribe(ctx)
	}()
	go func() {
		defer wg.Done()
		fetchErr = v.Fetch(ctx)
	}()
	wg.Wait()

	return errors.Join(identityErr, subErr, fetchErr)
}

func (v *MessageView) resolveIdentity(ctx context.Context) error {
	identity, err := v.sessions.CurrentUser(ctx)
	if err == nil && identity.ID == "" {
		err = errors.New("empty user id")
	}
	if err != nil {
		v.logger.Warn("identity lookup failed", zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrIdentityLookup, err)
		v.mu.Lock()
		if !v.closed {
			v.err = err
		}
		v.mu.Unlock()
		v.render()
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.identity = &identity
	v.mu.Unlock()

	if v.directory != nil {
		// best effort: el directorio ya registra su propio fallo
		_ = v.directory.Upsert(identity.ID, identity.Email, v.now())
	}
	v.render()
	return nil
}

func (v *MessageView) subscribe(ctx context.Context) error {
	sub, err := v.feed.Subscribe(ctx, domain.MessagesTable, []string{domain.EventAll}, v.onChange)
	if err != nil {
		v.logger.Warn("change feed subscribe failed", zap.Error(err))
		return err
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	v.sub = sub
	v.mu.Unlock()
	return nil
}

// onChange es el callback del feed: cualquier evento dispara un fetch completo.
func (v *MessageView) onChange() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	ctx := v.baseCtx
	v.mu.Unlock()
	_ = v.Fetch(ctx)
}

// Fetch reemplaza la lista completa por la tabla ordenada por created_at desc.
// Si falla, la lista anterior se conserva.
func (v *MessageView) Fetch(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.seq++
	seq := v.seq
	v.inflight++
	v.mu.Unlock()
	v.render()

	rows, err := v.table.SelectAllOrdered(ctx, domain.MessagesTable, orderColumn, true)

	v.mu.Lock()
	v.inflight--
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	stale := seq != v.seq
	switch {
	case stale:
		v.logger.Debug("discarding stale fetch", zap.Uint64("seq", seq), zap.Uint64("latest", v.seq))
		err = nil
	case err != nil:
		v.logger.Warn("fetch messages failed", zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrFetch, err)
		v.err = err
	default:
		v.messages = rows
		v.err = nil
	}
	v.mu.Unlock()

	v.render()
	return err
}

// SetDraft actualiza el texto del compose box.
func (v *MessageView) SetDraft(text string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.draft = text
	v.mu.Unlock()
	v.render()
}

// Submit inserta el borrador. Sin identidad o con borrador en blanco no hace nada.
func (v *MessageView) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.closed || v.identity == nil || strings.TrimSpace(v.draft) == "" {
		v.mu.Unlock()
		return nil
	}
	identity := *v.identity
	content := v.draft
	v.mu.Unlock()

	err := v.table.Insert(ctx, domain.MessagesTable, domain.NewMessage{
		Content:     content,
		UserID:      identity.ID,
		AuthorEmail: identity.Email,
		CreatedAt:   v.now(),
	})
	if err != nil {
		v.logger.Warn("insert message failed", zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrInsert, err)
		v.mu.Lock()
		if !v.closed {
			v.err = err
		}
		v.mu.Unlock()
		v.render()
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.draft = ""
	v.err = nil
	v.mu.Unlock()
	v.render()

	return v.Fetch(ctx)
}

// ResolveDisplayName calcula la etiqueta del autor de un mensaje.
func (v *MessageView) ResolveDisplayName(msg domain.Message) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.displayName(msg)
}

func (v *MessageView) displayName(msg domain.Message) string {
	if v.identity != nil && msg.UserID == v.identity.ID {
		return youLabel
	}
	if name := localPart(msg.AuthorEmail); name != "" {
		return name
	}
	if v.directory != nil && msg.UserID != "" {
		if entry, ok := v.directory.Lookup(msg.UserID); ok {
			if name := localPart(entry.Email); name != "" {
				return name
			}
		}
	}
	if msg.UserID == "" {
		return "Unknown"
	}
	id := []rune(msg.UserID)
	if len(id) > fallbackIDLength {
		id = id[:fallbackIDLength]
	}
	return string(id)
}

func localPart(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	name, _, _ := strings.Cut(email, "@")
	return name
}

// Logout delega en el SessionStore. El Shell reacciona al cambio de sesion.
func (v *MessageView) Logout(ctx context.Context) error {
	return v.sessions.SignOut(ctx)
}

// Close da de baja la suscripcion. Es idempotente.
func (v *MessageView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Snapshot devuelve el estado actual.
func (v *MessageView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *MessageView) snapshotLocked() Snapshot {
	snap := Snapshot{
		Draft:     v.draft,
		Loading:   v.inflight > 0,
		Err:       v.err,
		CanSubmit: !v.closed && v.identity != nil && strings.TrimSpace(v.draft) != "",
		Entries:   make([]Entry, 0, len(v.messages)),
	}
	if v.identity != nil {
		id := *v.identity
		snap.Identity = &id
	}
	for _, m := range v.messages {
		snap.Entries = append(snap.Entries, Entry{Message: m, DisplayName: v.displayName(m)})
	}
	return snap
}

func (v *MessageView) render() {
	v.renderMu.Lock()
	defer v.renderMu.Unlock()
	if v.onRender == nil {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.onRender(snap)
}
