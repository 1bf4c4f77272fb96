package core

import (
	"context"
	"errors"
)

type User struct {
	Username string `json:"username" validate:"required,min=1,max=50"`
	Password string `json:"password" validate:"required,min=1"`
}

// Validate validates the user input.
func (u *User) Validate() error {
	return validate.Struct(u)
}

var (
	ErrConflictedUser = errors.New("user already exists")
)

// UserStore is the credential collaborator behind registration and login.
// The relay core never touches it.
type UserStore interface {
	// CreateUser stores the user with a hashed password. It returns
	// ErrConflictedUser when the username is taken.
	CreateUser(ctx context.Context, user User) error

	// Exists reports whether a user with the username is registered.
	Exists(ctx context.Context, username string) (bool, error)

	// ComparePassword reports whether the password matches the stored hash
	// for the username. An unknown username is a mismatch, not an error.
	ComparePassword(ctx context.Context, username, password string) (bool, error)
}
