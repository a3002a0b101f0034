package domain

import "time"

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	OtpCodeHash     string     `json:"-"`
	OtpExpiresAt    *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Identity es la vista minima del usuario autenticado que consume el cliente.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Identity proyecta el usuario a su identidad publica.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}
