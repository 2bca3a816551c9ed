package event

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no event exists for the given id.
	ErrNotFound = errors.New("event not found")
)

// Event is a sellable event with a fixed seat pool and a sales window.
//
// Events are created by administrators and are immutable to the concurrency
// core: the core only reads TotalSeats and the sales window. The remaining
// seat count is NOT a field here — it lives in the ledger, which is the only
// authority for admission decisions.
type Event struct {
	// ID is the unique identifier for the event (UUID v4).
	ID string `db:"id"`

	// Name is the human-readable event name.
	Name string `db:"name"`

	// TotalSeats is the declared seat pool size. The ledger's seat counter
	// is initialized to this value exactly once, at creation.
	TotalSeats int `db:"total_seats"`

	// SalesStartAt is the instant queue joining opens.
	SalesStartAt time.Time `db:"sales_start_at"`

	// SalesEndAt is the instant queue joining closes.
	SalesEndAt time.Time `db:"sales_end_at"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `db:"created_at"`
}

// SalesOpen reports whether the sales window contains the given instant.
func (e Event) SalesOpen(at time.Time) bool {
	return !at.Before(e.SalesStartAt) && !at.After(e.SalesEndAt)
}

// SalesNotStarted reports whether the instant is before the sales window.
func (e Event) SalesNotStarted(at time.Time) bool {
	return at.Before(e.SalesStartAt)
}
