// Package audit records every queue and reservation state transition as an
// append-only event stream.
//
// Services publish records to NATS; a ClickHouse sink consumes the stream
// into the queue_events table for analytics. The trail is best-effort and
// advisory — correctness lives in the ledger and the mirror.
package audit

import (
	"context"
	"time"
)

// Action is the kind of transition being recorded.
type Action string

const (
	ActionJoined   Action = "joined"
	ActionPromoted Action = "promoted"
	ActionSoldOut  Action = "soldout"
	ActionExpired  Action = "expired"
	ActionPaid     Action = "paid"
)

// Record is one transition.
type Record struct {
	Action        Action    `json:"action"`
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	ReservationID string    `json:"reservationId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Recorder accepts transition records. Implementations must not block the
// caller's transition path.
type Recorder interface {
	Record(ctx context.Context, r Record)
}

// Noop discards every record.
type Noop struct{}

func (Noop) Record(context.Context, Record) {}
