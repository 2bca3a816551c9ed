package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgkim42/ticket-queue/internal/domain/user"
)

// UserRepo is the postgres implementation of user.Repository.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, u user.User) error {
	const op = "postgres.UserRepo.Create"
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	const op = "postgres.UserRepo.GetByEmail"
	return r.get(ctx, op, `SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = $1`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	const op = "postgres.UserRepo.GetByID"
	return r.get(ctx, op, `SELECT id, email, name, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

func (r *UserRepo) get(ctx context.Context, op, query string, arg any) (user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, fmt.Errorf("%s: %w", op, user.ErrNotFound)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
