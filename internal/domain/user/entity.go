package user

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user exists for the given id or email.
	ErrNotFound = errors.New("user not found")
)

// Role controls access to the /admin surface.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// User is an authenticated principal. Identity is external to the
// concurrency core; the core only ever sees the opaque user id.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// IsAdmin reports whether the user may call /admin endpoints.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
