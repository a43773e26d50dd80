package domain

import "time"

// User is an account allowed to talk to the assistant.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
