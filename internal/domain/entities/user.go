package entities

import (
	"strings"
	"time"
)

// User is an account that can propose or review catalog changes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser holds the input for registering an account.
type NewUser struct {
	Username string `validate:"required,min=3,max=64,alphanumunicode"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=128"`
}

// Validate checks the registration input.
func (u *NewUser) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return validateStruct(u)
}
