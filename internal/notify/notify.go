// Package notify delivers best-effort hints to clients.
//
// Notifications never carry correctness: the ledger and the mirror are the
// authoritative view and clients poll /events/:id/queue/me to recover. A
// notifier must therefore never block or fail a ledger or store transition —
// implementations publish fire-and-forget and log delivery errors at Warn.
package notify

import (
	"context"
	"time"
)

// Event names on the push channel.
const (
	EventQueuePosition      = "queue:position"
	EventQueueActive        = "queue:active"
	EventQueueSoldOut       = "queue:soldout"
	EventReservationExpired = "reservation:expired"
	EventReservationPaid    = "reservation:paid"
)

// Message is the envelope pushed to a user's room.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Payload shapes, wire-compatible with the push channel contract.
type (
	QueuePositionData struct {
		EventID  string `json:"eventId"`
		Position int64  `json:"position"`
		Status   string `json:"status"`
	}

	QueueActiveData struct {
		EventID       string    `json:"eventId"`
		ReservationID string    `json:"reservationId"`
		ExpiresAt     time.Time `json:"expiresAt"`
	}

	QueueSoldOutData struct {
		EventID string `json:"eventId"`
	}

	ReservationExpiredData struct {
		ReservationID string `json:"reservationId"`
		EventID       string `json:"eventId"`
	}

	ReservationPaidData struct {
		ReservationID string    `json:"reservationId"`
		EventID       string    `json:"eventId"`
		PaidAt        time.Time `json:"paidAt"`
	}
)

// Notifier pushes a message to a single user's room.
type Notifier interface {
	QueuePosition(ctx context.Context, userID string, data QueuePositionData)
	QueueActive(ctx context.Context, userID string, data QueueActiveData)
	QueueSoldOut(ctx context.Context, userID string, data QueueSoldOutData)
	ReservationExpired(ctx context.Context, userID string, data ReservationExpiredData)
	ReservationPaid(ctx context.Context, userID string, data ReservationPaidData)
}

// Noop discards every notification. Used when NATS is not configured and in
// tests that do not assert on delivery.
type Noop struct{}

func (Noop) QueuePosition(context.Context, string, QueuePositionData)           {}
func (Noop) QueueActive(context.Context, string, QueueActiveData)               {}
func (Noop) QueueSoldOut(context.Context, string, QueueSoldOutData)             {}
func (Noop) ReservationExpired(context.Context, string, ReservationExpiredData) {}
func (Noop) ReservationPaid(context.Context, string, ReservationPaidData)       {}
