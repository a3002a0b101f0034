package domain

import "time"

// MessagesTable es la unica tabla que publica el servicio.
const MessagesTable = "messages"

type Message struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	UserID      string    `json:"user_id"`
	AuthorEmail string    `json:"author_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMessage es la fila que se inserta; el id lo asigna la base.
type NewMessage struct {
	Content     string    `json:"content"`
	UserID      string    `json:"user_id,omitempty"`
	AuthorEmail string    `json:"author_email,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
