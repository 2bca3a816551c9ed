package queue

import "context"

// Repository is the durable mirror of queue entries.
//
// The Mark* transitions are conditional updates keyed by (event, user): each
// returns true iff a row changed. MarkActive additionally requires the
// current status to be WAITING — that conditional is the at-most-once step
// that serializes two promoters racing on the same queue head.
type Repository interface {
	Create(ctx context.Context, e Entry) error
	GetByEventAndUser(ctx context.Context, eventID, userID string) (Entry, error)

	// MarkActive transitions WAITING → ACTIVE and records the reservation id.
	// Returns false when the entry was not WAITING (a concurrent promoter
	// already won).
	MarkActive(ctx context.Context, eventID, userID, reservationID string) (bool, error)

	// MarkDone transitions the entry to DONE (payment completed).
	MarkDone(ctx context.Context, eventID, userID string) (bool, error)

	// MarkExpired transitions the entry to EXPIRED (abandoned payment
	// window).
	MarkExpired(ctx context.Context, eventID, userID string) (bool, error)

	// MarkExpiredFromWaiting transitions WAITING → EXPIRED (turned away at
	// sold-out). Returns false when the entry was not WAITING — a concurrent
	// promoter admitted the head, and the caller must not touch it.
	MarkExpiredFromWaiting(ctx context.Context, eventID, userID string) (bool, error)
}
