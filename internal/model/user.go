package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is an account that can own enrolled devices. Account management
// (passwords, profiles) lives outside this service; we only need enough
// to resolve a handle and check device ownership.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Handle      string    `db:"handle" json:"handle"`
	DisplayName *string   `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

var (
	// ErrUserNotFound is returned when a user handle cannot be resolved
	ErrUserNotFound = errors.New("user not found")

	// ErrHandleExists is returned when creating a user with a taken handle
	ErrHandleExists = errors.New("handle already exists")
)
