package domain

import "time"

// DirectoryEntry es la ultima identidad conocida de un usuario en el cache local.
type DirectoryEntry struct {
	UserID   string    `json:"-"`
	Email    string    `json:"email"`
	LastSeen time.Time `json:"last_seen"`
}
