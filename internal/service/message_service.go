package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"minichat/internal/domain"
	"minichat/internal/repository"
)

// MessageService encapsula las reglas de la tabla de mensajes.
type MessageService struct {
	logger *zap.Logger
	repo   repository.MessageRepository
	now    func() time.Time
}

var (
	ErrMessageServiceNotConfigured = errors.New("message service not configured")
	ErrMessageInvalidInput         = errors.New("message invalid input")
	ErrMessageInvalidOrder         = errors.New("message invalid order")
)

// MaxMessageLength limita el tamaño de un mensaje en bytes.
const MaxMessageLength = 4 * 1024

// Order describe el orden pedido para select_all_ordered.
type Order struct {
	Column     string
	Descending bool
}

// DefaultOrder es el orden de la vista de mensajes: mas recientes primero.
var DefaultOrder = Order{Column: "created_at", Descending: true}

// ParseOrder interpreta "columna.asc|desc". Solo se admite created_at.
func ParseOrder(raw string) (Order, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return DefaultOrder, nil
	}
	column, direction, found := strings.Cut(raw, ".")
	if column != "created_at" {
		return Order{}, ErrMessageInvalidOrder
	}
	if !found {
		return Order{Column: column}, nil
	}
	switch direction {
	case "asc":
		return Order{Column: column}, nil
	case "desc":
		return Order{Column: column, Descending: true}, nil
	default:
		return Order{}, ErrMessageInvalidOrder
	}
}

func NewMessageService(logger *zap.Logger, repo repository.MessageRepository) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		logger: logger,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Post inserta un mensaje del usuario autenticado. El contenido nunca se
// guarda vacio y el autor (id y email) sale siempre de author.
func (s *MessageService) Post(ctx context.Context, author domain.Identity, msg domain.NewMessage) (domain.Message, error) {
	if s == nil || s.repo == nil {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}

	msg.UserID = strings.TrimSpace(author.ID)
	msg.AuthorEmail = strings.TrimSpace(author.Email)
	if msg.UserID == "" || strings.TrimSpace(msg.Content) == "" || len(msg.Content) > MaxMessageLength {
		return domain.Message{}, ErrMessageInvalidInput
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	created, err := s.repo.Create(ctx, msg)
	if err != nil {
		return domain.Message{}, err
	}
	s.logger.Debug("message stored", zap.Int64("message_id", created.ID), zap.String("user_id", created.UserID))
	return created, nil
}

// List devuelve todos los mensajes en el orden pedido.
func (s *MessageService) List(ctx context.Context, order Order) ([]domain.Message, error) {
	if s == nil || s.repo == nil {
		return nil, ErrMessageServiceNotConfigured
	}
	if order.Column != "created_at" {
		return nil, ErrMessageInvalidOrder
	}
	return s.repo.ListOrdered(ctx, order.Descending)
}
