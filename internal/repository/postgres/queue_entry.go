package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgkim42/ticket-queue/internal/domain/queue"
)

// QueueEntryRepo is the postgres implementation of queue.Repository.
type QueueEntryRepo struct {
	pool *pgxpool.Pool
}

func NewQueueEntryRepo(pool *pgxpool.Pool) *QueueEntryRepo {
	return &QueueEntryRepo{pool: pool}
}

// Create inserts a WAITING entry. A concurrent first join for the same
// (event, user) hits the unique constraint and is swallowed: the join
// protocol answers idempotently from the surviving row.
func (r *QueueEntryRepo) Create(ctx context.Context, e queue.Entry) error {
	const op = "postgres.QueueEntryRepo.Create"
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queue_entries (id, event_id, user_id, status, reservation_id, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, e.ID, e.EventID, e.UserID, e.Status, e.ReservationID, e.Position, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *QueueEntryRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (queue.Entry, error) {
	const op = "postgres.QueueEntryRepo.GetByEventAndUser"
	var e queue.Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, user_id, status, reservation_id, position, created_at, updated_at
		FROM queue_entries
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.ReservationID, &e.Position, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Entry{}, fmt.Errorf("%s: %w", op, queue.ErrNotFound)
	}
	if err != nil {
		return queue.Entry{}, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// MarkActive is the serialization point for concurrent promoters: the WHERE
// clause requires status WAITING, so at most one caller ever observes a row
// affected.
func (r *QueueEntryRepo) MarkActive(ctx context.Context, eventID, userID, reservationID string) (bool, error) {
	const op = "postgres.QueueEntryRepo.MarkActive"
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = $1, reservation_id = $2, updated_at = now()
		WHERE event_id = $3 AND user_id = $4 AND status = $5
	`, queue.StatusActive, reservationID, eventID, userID, queue.StatusWaiting)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QueueEntryRepo) MarkDone(ctx context.Context, eventID, userID string) (bool, error) {
	const op = "postgres.QueueEntryRepo.MarkDone"
	return r.transition(ctx, op, eventID, userID, queue.StatusDone)
}

func (r *QueueEntryRepo) MarkExpired(ctx context.Context, eventID, userID string) (bool, error) {
	const op = "postgres.QueueEntryRepo.MarkExpired"
	return r.transition(ctx, op, eventID, userID, queue.StatusExpired)
}

// MarkExpiredFromWaiting requires the current status to be WAITING, so a
// sold-out verdict can never clobber an entry a concurrent promoter just
// admitted.
func (r *QueueEntryRepo) MarkExpiredFromWaiting(ctx context.Context, eventID, userID string) (bool, error) {
	const op = "postgres.QueueEntryRepo.MarkExpiredFromWaiting"
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = $1, updated_at = now()
		WHERE event_id = $2 AND user_id = $3 AND status = $4
	`, queue.StatusExpired, eventID, userID, queue.StatusWaiting)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// transition moves a non-terminal entry to the target status. Terminal rows
// are immutable.
func (r *QueueEntryRepo) transition(ctx context.Context, op, eventID, userID string, to queue.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = $1, updated_at = now()
		WHERE event_id = $2 AND user_id = $3 AND status NOT IN ($4, $5)
	`, to, eventID, userID, queue.StatusDone, queue.StatusExpired)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}
