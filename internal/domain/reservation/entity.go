package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no reservation exists for the given id.
	ErrNotFound = errors.New("reservation not found")
)

// Status represents the status of a reservation.
//
// STATE MACHINE:
//
//	PENDING_PAYMENT → PAID     (user pays inside the window)
//	PENDING_PAYMENT → EXPIRED  (deadline elapses; expiration pipeline fires)
//	PENDING_PAYMENT → CANCELED (reserved for a future cancellation path;
//	                            never produced today)
//
// TERMINAL STATES:
//   - PAID:     seat permanently consumed; paid instant recorded
//   - EXPIRED:  seat returned to the pool exactly once
//   - CANCELED: would behave like EXPIRED for the ledger
//
// PAID and EXPIRED race: payment and the expiration pipeline both issue a
// conditional update from PENDING_PAYMENT, and the store guarantees exactly
// one of them affects the row. The loser observes zero rows and retires
// without touching the seat ledger.
type Status string

const (
	// StatusPendingPayment means the user was admitted and the payment
	// window is open. Initial state for all new reservations.
	StatusPendingPayment Status = "PENDING_PAYMENT"

	// StatusPaid means payment completed before the deadline. Terminal.
	StatusPaid Status = "PAID"

	// StatusExpired means the deadline elapsed without payment. Terminal.
	StatusExpired Status = "EXPIRED"

	// StatusCanceled is reserved for a future user-initiated cancellation.
	// No code path produces it. Terminal.
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired || s == StatusCanceled
}

// Reservation is a held seat with a payment deadline.
//
// A reservation is minted by the promotion engine in the same logical step
// that decrements the seat counter; it is the durable proof that one unit of
// the pool is spoken for. For any (event, user) at most one non-terminal
// reservation exists.
type Reservation struct {
	// ID is the unique identifier for the reservation (UUID v4).
	ID string `db:"id"`

	// EventID is the event whose seat this reservation holds.
	EventID string `db:"event_id"`

	// UserID is the owner; only this user may pay.
	UserID string `db:"user_id"`

	// Status is the current status of the reservation.
	Status Status `db:"status"`

	// ExpiresAt is the payment deadline (creation instant + window W).
	ExpiresAt time.Time `db:"expires_at"`

	// PaidAt is the payment instant; nil until status → PAID.
	PaidAt *time.Time `db:"paid_at"`

	// CreatedAt is the timestamp the reservation was minted.
	CreatedAt time.Time `db:"created_at"`
}

// New creates a PENDING_PAYMENT reservation whose deadline is now + window.
func New(eventID, userID string, window time.Duration) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Status:    StatusPendingPayment,
		ExpiresAt: now.Add(window),
		CreatedAt: now,
	}
}

// IsPending reports whether the reservation is still payable.
func (r Reservation) IsPending() bool { return r.Status == StatusPendingPayment }

// DeadlineElapsed reports whether the payment deadline has passed.
func (r Reservation) DeadlineElapsed(at time.Time) bool { return at.After(r.ExpiresAt) }
