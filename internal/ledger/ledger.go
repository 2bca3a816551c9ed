// Package ledger is the authoritative concurrency state of the queue.
//
// It is a thin facade over a shared redis instance: the seat counters, the
// FIFO queue sets, the active-user markers and the expiration fences all
// live behind it, and every coordinator key is confined to this package. All
// cross-process mutual exclusion derives from redis command atomicity — no
// caller holds an in-process lock across a ledger call.
//
// The durable store mirrors ledger decisions after the fact; it is never
// consulted to decide whether a seat may be taken.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// fenceTTL keeps an expiration fence alive long enough for any crashed
	// pipeline run to be retried, then releases the storage.
	fenceTTL = time.Hour
)

// Ledger exposes the only operations permitted against the coordinator.
type Ledger struct {
	rdb redis.UniversalClient
}

// New wraps a redis client.
func New(rdb redis.UniversalClient) *Ledger {
	return &Ledger{rdb: rdb}
}

func seatsKey(eventID string) string       { return "seats:" + eventID }
func queueKey(eventID string) string       { return "queue:" + eventID }
func activeKey(eventID, userID string) string {
	return "active:" + eventID + ":" + userID
}
func activeWindowKey(eventID string) string { return "activeCount:" + eventID }
func fenceKey(reservationID string) string  { return "expired:" + reservationID }

// InitializeSeats writes the declared seat total for an event. Called once
// per event at creation; a repeated call overwrites, so callers must not
// reinitialize after first use.
func (l *Ledger) InitializeSeats(ctx context.Context, eventID string, total int) error {
	const op = "ledger.InitializeSeats"
	if err := l.rdb.Set(ctx, seatsKey(eventID), total, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DecrementSeats atomically subtracts one seat and returns the new value.
// The result may be negative; the caller owns the compensating increment.
func (l *Ledger) DecrementSeats(ctx context.Context, eventID string) (int64, error) {
	const op = "ledger.DecrementSeats"
	v, err := l.rdb.Decr(ctx, seatsKey(eventID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// IncrementSeats atomically adds one seat and returns the new value.
func (l *Ledger) IncrementSeats(ctx context.Context, eventID string) (int64, error) {
	const op = "ledger.IncrementSeats"
	v, err := l.rdb.Incr(ctx, seatsKey(eventID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// RemainingSeats returns the current seat count, clamped at zero. A missing
// key reads as zero. Transiently negative counter values (a decrement about
// to be reverted) are never exposed.
func (l *Ledger) RemainingSeats(ctx context.Context, eventID string) (int64, error) {
	const op = "ledger.RemainingSeats"
	v, err := l.rdb.Get(ctx, seatsKey(eventID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

// AddToQueue appends the user to the event queue and returns their 1-based
// position. The add is set-if-absent: a user already in the queue keeps
// their original score, so repeated joins cannot move anyone.
//
// Scores are microsecond timestamps; they fit float64 exactly, so the total
// order of the sorted set is the join order.
func (l *Ledger) AddToQueue(ctx context.Context, eventID, userID string) (int64, error) {
	const op = "ledger.AddToQueue"
	score := float64(time.Now().UnixMicro())
	if err := l.rdb.ZAddNX(ctx, queueKey(eventID), redis.Z{Score: score, Member: userID}).Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rank, err := l.rdb.ZRank(ctx, queueKey(eventID), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rank + 1, nil
}

// QueuePosition returns the user's 1-based position, or false when the user
// is not queued.
func (l *Ledger) QueuePosition(ctx context.Context, eventID, userID string) (int64, bool, error) {
	const op = "ledger.QueuePosition"
	rank, err := l.rdb.ZRank(ctx, queueKey(eventID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return rank + 1, true, nil
}

// QueueLength returns the number of queued users.
func (l *Ledger) QueueLength(ctx context.Context, eventID string) (int64, error) {
	const op = "ledger.QueueLength"
	n, err := l.rdb.ZCard(ctx, queueKey(eventID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// PeekHead returns the user at the front of the queue, or false when the
// queue is empty. Peek is read-only; two concurrent promoters may observe
// the same head, and the store's conditional update decides the winner.
func (l *Ledger) PeekHead(ctx context.Context, eventID string) (string, bool, error) {
	const op = "ledger.PeekHead"
	members, err := l.rdb.ZRange(ctx, queueKey(eventID), 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if len(members) == 0 {
		return "", false, nil
	}
	return members[0], true, nil
}

// RemoveFromQueue removes the user from the event queue. Removing an absent
// member is a no-op.
func (l *Ledger) RemoveFromQueue(ctx context.Context, eventID, userID string) error {
	const op = "ledger.RemoveFromQueue"
	if err := l.rdb.ZRem(ctx, queueKey(eventID), userID).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetActive marks the user as inside the payment window. The marker's TTL
// matches the reservation deadline, and the user is scored into the active
// window set by that same deadline so ActiveCount can never drift when the
// marker expires silently.
func (l *Ledger) SetActive(ctx context.Context, eventID, userID string, ttl time.Duration) error {
	const op = "ledger.SetActive"
	deadline := time.Now().Add(ttl)
	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, activeKey(eventID, userID), "1", ttl)
	pipe.ZAdd(ctx, activeWindowKey(eventID), redis.Z{
		Score:  float64(deadline.UnixMicro()),
		Member: userID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsActive reports whether the user currently holds the payment window.
func (l *Ledger) IsActive(ctx context.Context, eventID, userID string) (bool, error) {
	const op = "ledger.IsActive"
	n, err := l.rdb.Exists(ctx, activeKey(eventID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ClearActive removes the user's payment-window marker. Idempotent.
func (l *Ledger) ClearActive(ctx context.Context, eventID, userID string) error {
	const op = "ledger.ClearActive"
	pipe := l.rdb.TxPipeline()
	pipe.Del(ctx, activeKey(eventID, userID))
	pipe.ZRem(ctx, activeWindowKey(eventID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActiveCount returns the number of users currently inside their payment
// window. Members whose deadline has passed are pruned before counting.
func (l *Ledger) ActiveCount(ctx context.Context, eventID string) (int64, error) {
	const op = "ledger.ActiveCount"
	now := float64(time.Now().UnixMicro())
	key := activeWindowKey(eventID)
	if err := l.rdb.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := l.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ClaimExpiration takes the set-if-absent fence for a reservation. It
// returns true to exactly one caller across all processes; every retry and
// duplicate delivery observes false.
func (l *Ledger) ClaimExpiration(ctx context.Context, reservationID string) (bool, error) {
	const op = "ledger.ClaimExpiration"
	ok, err := l.rdb.SetNX(ctx, fenceKey(reservationID), "1", fenceTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// ExpirationClaimed reports whether the fence for a reservation exists. The
// expiration pipeline uses it on retries to detect a prior run that crashed
// after taking the fence.
func (l *Ledger) ExpirationClaimed(ctx context.Context, reservationID string) (bool, error) {
	const op = "ledger.ExpirationClaimed"
	n, err := l.rdb.Exists(ctx, fenceKey(reservationID)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
