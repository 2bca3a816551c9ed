package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
)

// ReservationRepo is the postgres implementation of reservation.Repository.
type ReservationRepo struct {
	pool *pgxpool.Pool
}

func NewReservationRepo(pool *pgxpool.Pool) *ReservationRepo {
	return &ReservationRepo{pool: pool}
}

func (r *ReservationRepo) Create(ctx context.Context, res reservation.Reservation) error {
	const op = "postgres.ReservationRepo.Create"
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (id, event_id, user_id, status, expires_at, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.ID, res.EventID, res.UserID, res.Status, res.ExpiresAt, res.PaidAt, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *ReservationRepo) Get(ctx context.Context, id string) (reservation.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"
	var res reservation.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, user_id, status, expires_at, paid_at, created_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.EventID, &res.UserID, &res.Status, &res.ExpiresAt, &res.PaidAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.Reservation{}, fmt.Errorf("%s: %w", op, reservation.ErrNotFound)
	}
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// MarkPaid races MarkExpired on the PENDING_PAYMENT precondition; the store
// lets exactly one of them affect the row.
func (r *ReservationRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	const op = "postgres.ReservationRepo.MarkPaid"
	tag, err := r.pool.Exec(ctx, `
		UPDATE reservations
		SET status = $1, paid_at = $2
		WHERE id = $3 AND status = $4
	`, reservation.StatusPaid, paidAt, id, reservation.StatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepo) MarkExpired(ctx context.Context, id string) (bool, error) {
	const op = "postgres.ReservationRepo.MarkExpired"
	tag, err := r.pool.Exec(ctx, `
		UPDATE reservations
		SET status = $1
		WHERE id = $2 AND status = $3
	`, reservation.StatusExpired, id, reservation.StatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepo) ListPendingBefore(ctx context.Context, deadline time.Time, limit int) ([]reservation.Reservation, error) {
	const op = "postgres.ReservationRepo.ListPendingBefore"
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, user_id, status, expires_at, paid_at, created_at
		FROM reservations
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3
	`, reservation.StatusPendingPayment, deadline, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var res reservation.Reservation
		if err := rows.Scan(&res.ID, &res.EventID, &res.UserID, &res.Status, &res.ExpiresAt, &res.PaidAt, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (r *ReservationRepo) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	const op = "postgres.ReservationRepo.CountByStatus"
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*) FROM reservations WHERE event_id = $1 GROUP BY status
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	counts := make(map[reservation.Status]int)
	for rows.Next() {
		var s reservation.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return counts, nil
}
