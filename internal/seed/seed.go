// Package seed provisions demo users for local development and the demo
// client. Inserts are idempotent: existing emails are left untouched.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/domain/user"
)

// UserCreator is satisfied by the postgres user repository.
type UserCreator interface {
	Create(ctx context.Context, u user.User) error
}

type demoUser struct {
	email    string
	name     string
	password string
	role     user.Role
}

var demoUsers = []demoUser{
	{"admin@ticket.local", "Admin", "admin1234", user.RoleAdmin},
	{"alice@ticket.local", "Alice", "alice1234", user.RoleCustomer},
	{"bob@ticket.local", "Bob", "bob1234", user.RoleCustomer},
	{"carol@ticket.local", "Carol", "carol1234", user.RoleCustomer},
}

// DemoUsers inserts the demo accounts.
func DemoUsers(ctx context.Context, users UserCreator, logger *zap.Logger) error {
	for _, d := range demoUsers {
		hash, err := auth.HashPassword(d.password)
		if err != nil {
			return fmt.Errorf("seed: hash password: %w", err)
		}
		u := user.User{
			ID:           uuid.NewString(),
			Email:        d.email,
			Name:         d.name,
			PasswordHash: hash,
			Role:         d.role,
			CreatedAt:    time.Now().UTC(),
		}
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed: create %s: %w", d.email, err)
		}
		logger.Info("seed: demo user ready", zap.String("email", d.email), zap.String("role", string(d.role)))
	}
	return nil
}
