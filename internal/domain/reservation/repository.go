package reservation

import (
	"context"
	"time"
)

// Repository is the durable mirror of reservations.
//
// MarkPaid and MarkExpired are conditional updates from PENDING_PAYMENT;
// each returns true iff the row changed. Exactly one of the two can ever
// succeed for a given reservation.
type Repository interface {
	Create(ctx context.Context, r Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)

	// MarkPaid transitions PENDING_PAYMENT → PAID and records the paid
	// instant. Returns false when the reservation was already terminal.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)

	// MarkExpired transitions PENDING_PAYMENT → EXPIRED. Returns false when
	// the reservation was already terminal.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// ListPendingBefore returns PENDING_PAYMENT reservations whose deadline
	// elapsed before the given instant; the expiration sweep feeds on it.
	ListPendingBefore(ctx context.Context, deadline time.Time, limit int) ([]Reservation, error)

	// CountByStatus returns per-status reservation counts for an event.
	CountByStatus(ctx context.Context, eventID string) (map[Status]int, error)
}
