package model

import "time"

// User is an authenticated CRM account. Imported entities are owned by the
// seed user when no explicit owner is known.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
