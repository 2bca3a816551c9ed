package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgkim42/ticket-queue/internal/domain/event"
)

// EventRepo is the postgres implementation of event.Repository.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Create(ctx context.Context, e event.Event) error {
	const op = "postgres.EventRepo.Create"
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, name, total_seats, sales_start_at, sales_end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Name, e.TotalSeats, e.SalesStartAt, e.SalesEndAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *EventRepo) Get(ctx context.Context, id string) (event.Event, error) {
	const op = "postgres.EventRepo.Get"
	var e event.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, total_seats, sales_start_at, sales_end_at, created_at
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.TotalSeats, &e.SalesStartAt, &e.SalesEndAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, fmt.Errorf("%s: %w", op, event.ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

func (r *EventRepo) List(ctx context.Context) ([]event.Event, error) {
	const op = "postgres.EventRepo.List"
	return r.list(ctx, op, `
		SELECT id, name, total_seats, sales_start_at, sales_end_at, created_at
		FROM events ORDER BY sales_start_at
	`)
}

func (r *EventRepo) ListOnSale(ctx context.Context) ([]event.Event, error) {
	const op = "postgres.EventRepo.ListOnSale"
	return r.list(ctx, op, `
		SELECT id, name, total_seats, sales_start_at, sales_end_at, created_at
		FROM events
		WHERE sales_start_at <= now() AND now() <= sales_end_at
		ORDER BY sales_start_at
	`)
}

func (r *EventRepo) list(ctx context.Context, op, query string) ([]event.Event, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalSeats, &e.SalesStartAt, &e.SalesEndAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
