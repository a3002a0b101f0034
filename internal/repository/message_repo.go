package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"minichat/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message domain.NewMessage) (domain.Message, error)
	ListOrdered(ctx context.Context, descending bool) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.NewMessage) (domain.Message, error) {
	const query = `
		INSERT INTO messages (content, user_id, author_email, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var authorEmail interface{}
	if message.AuthorEmail != "" {
		authorEmail = message.AuthorEmail
	}

	created := domain.Message{
		Content:     message.Content,
		UserID:      message.UserID,
		AuthorEmail: message.AuthorEmail,
		CreatedAt:   message.CreatedAt,
	}
	err := r.pool.QueryRow(ctx, query,
		message.Content,
		message.UserID,
		authorEmail,
		message.CreatedAt,
	).Scan(&created.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return created, nil
}

// ListOrdered devuelve la tabla completa ordenada por created_at (e id para desempatar).
func (r *PgMessageRepository) ListOrdered(ctx context.Context, descending bool) ([]domain.Message, error) {
	query := `
		SELECT id, content, user_id, author_email, created_at
		FROM messages
		ORDER BY created_at ASC, id ASC
	`
	if descending {
		query = `
		SELECT id, content, user_id, author_email, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
	`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		var authorEmail *string

		err = rows.Scan(
			&msg.ID,
			&msg.Content,
			&msg.UserID,
			&authorEmail,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if authorEmail != nil {
			msg.AuthorEmail = *authorEmail
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
