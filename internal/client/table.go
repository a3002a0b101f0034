package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"minichat/internal/domain"
)

// MessageTable es la tabla remota con select ordenado e insert.
type MessageTable interface {
	SelectAllOrdered(ctx context.Context, table, orderBy string, descending bool) ([]domain.Message, error)
	Insert(ctx context.Context, table string, row domain.NewMessage) error
}

// HTTPMessageTable implementa MessageTable contra /messages.
type HTTPMessageTable struct {
	api    *api
	tokens TokenSource
}

func NewHTTPMessageTable(baseURL string, tokens TokenSource, httpClient *http.Client) *HTTPMessageTable {
	return &HTTPMessageTable{api: newAPI(baseURL, httpClient), tokens: tokens}
}

func (t *HTTPMessageTable) SelectAllOrdered(ctx context.Context, table, orderBy string, descending bool) ([]domain.Message, error) {
	if table != domain.MessagesTable {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	direction := "asc"
	if descending {
		direction = "desc"
	}
	path := "/" + table + "?order=" + url.QueryEscape(orderBy+"."+direction)

	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	err := withToken(ctx, t.tokens, func(token string) error {
		return t.api.do(ctx, http.MethodGet, path, token, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	return resp.Messages, nil
}

func (t *HTTPMessageTable) Insert(ctx context.Context, table string, row domain.NewMessage) error {
	if table != domain.MessagesTable {
		return fmt.Errorf("unknown table %q", table)
	}
	body := struct {
		Content     string     `json:"content"`
		AuthorEmail string     `json:"author_email,omitempty"`
		CreatedAt   *time.Time `json:"created_at,omitempty"`
	}{
		Content:     row.Content,
		AuthorEmail: row.AuthorEmail,
	}
	if !row.CreatedAt.IsZero() {
		at := row.CreatedAt.UTC()
		body.CreatedAt = &at
	}
	return withToken(ctx, t.tokens, func(token string) error {
		return t.api.do(ctx, http.MethodPost, "/"+table, token, body, nil)
	})
}
