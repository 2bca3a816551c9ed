package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no entry exists for (event, user).
	ErrNotFound = errors.New("queue entry not found")
)

// Status represents the status of a queue entry.
//
// STATE MACHINE:
//
//	WAITING → ACTIVE  (promotion engine admits the user to the payment window)
//	WAITING → EXPIRED (promotion engine observes a sold-out pool)
//	ACTIVE  → DONE    (reservation paid)
//	ACTIVE  → EXPIRED (payment window elapsed without payment)
//
// TERMINAL STATES:
//   - DONE:    the user paid; no further transitions
//   - EXPIRED: sold out or abandoned; the user must rejoin to try again
//
// Transitions are decided by the ledger first and mirrored here second; the
// store never decides whether a seat may be taken.
type Status string

const (
	// StatusWaiting means the user is in the FIFO queue. Initial state.
	StatusWaiting Status = "WAITING"

	// StatusActive means the user holds a pending reservation and is inside
	// the payment window.
	StatusActive Status = "ACTIVE"

	// StatusDone means the user's reservation was paid. Terminal.
	StatusDone Status = "DONE"

	// StatusExpired means the user was turned away (sold out) or abandoned
	// the payment window. Terminal.
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusExpired
}

// Entry is the durable mirror of a user's place in an event queue.
//
// Identity is (EventID, UserID): a user joins an event's queue at most once,
// and repeated joins are answered from this row (join idempotence). The row
// is created on first join and never deleted; its Status records the final
// outcome forever.
type Entry struct {
	// ID is the unique identifier for the entry (UUID v4).
	ID string `db:"id"`

	// EventID is the event whose queue this entry belongs to.
	EventID string `db:"event_id"`

	// UserID is the queued user.
	UserID string `db:"user_id"`

	// Status is the current status of the entry.
	Status Status `db:"status"`

	// ReservationID is set when the entry transitions to ACTIVE; nil before.
	ReservationID *string `db:"reservation_id"`

	// Position is the 1-based rank assigned by the ledger at join time.
	// It is a historical record; the live position comes from the ledger.
	Position int64 `db:"position"`

	// CreatedAt is the timestamp of the first join.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt is the timestamp of the last status transition.
	UpdatedAt time.Time `db:"updated_at"`
}

// New creates a WAITING entry for the given event, user and ledger-assigned
// position.
func New(eventID, userID string, position int64) Entry {
	now := time.Now().UTC()
	return Entry{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Status:    StatusWaiting,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsWaiting reports whether the entry is still queued.
func (e Entry) IsWaiting() bool { return e.Status == StatusWaiting }

// IsActive reports whether the entry is inside the payment window.
func (e Entry) IsActive() bool { return e.Status == StatusActive }
