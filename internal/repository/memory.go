package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"minichat/internal/domain"
)

// ChangeNotifier recibe un aviso por cada escritura en la tabla de mensajes.
// En Postgres lo hace el trigger; el repositorio en memoria lo emula.
type ChangeNotifier interface {
	Publish(ev domain.ChangeEvent)
}

// MemoryUserRepository guarda usuarios en memoria. Pensado para desarrollo y tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailTaken
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) UpdateOTP(_ context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.OtpCodeHash = otpHash
	user.OtpExpiresAt = &otpExpiresAt
	r.byID[id] = user
	return nil
}

func (r *MemoryUserRepository) VerifyEmail(_ context.Context, id string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerifiedAt = &verifiedAt
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	r.byID[id] = user
	return nil
}

// MemoryMessageRepository guarda mensajes en memoria y avisa al notifier en cada insert.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	nextID   int64
	rows     []domain.Message
	notifier ChangeNotifier
}

func NewMemoryMessageRepository(notifier ChangeNotifier) *MemoryMessageRepository {
	return &MemoryMessageRepository{notifier: notifier}
}

func (r *MemoryMessageRepository) Create(_ context.Context, message domain.NewMessage) (domain.Message, error) {
	r.mu.Lock()
	r.nextID++
	created := domain.Message{
		ID:          r.nextID,
		Content:     message.Content,
		UserID:      message.UserID,
		AuthorEmail: message.AuthorEmail,
		CreatedAt:   message.CreatedAt,
	}
	r.rows = append(r.rows, created)
	r.mu.Unlock()

	if r.notifier != nil {
		r.notifier.Publish(domain.ChangeEvent{Table: domain.MessagesTable, Event: domain.EventInsert})
	}
	return created, nil
}

func (r *MemoryMessageRepository) ListOrdered(_ context.Context, descending bool) ([]domain.Message, error) {
	r.mu.RLock()
	out := make([]domain.Message, len(r.rows))
	copy(out, r.rows)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if descending {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if descending {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out, nil
}
