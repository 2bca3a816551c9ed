// Package expiration returns abandoned seats to the pool, exactly once per
// reservation.
//
// The deadline fires through two redundant paths: a delayed RabbitMQ message
// (low latency) and a periodic sweep of pending reservations past their
// deadline (resilient to broker loss). Both funnel into Pipeline.Expire,
// which is idempotent: the ledger fence deduplicates deliveries, and the
// mirror's conditional PENDING_PAYMENT → EXPIRED update is the at-most-once
// gate for the seat increment. Payment races this same conditional; exactly
// one side ever affects the row, and only that winner moves the ledger.
package expiration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/audit"
	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/notify"
)

// PromoteFunc re-triggers promotion after a seat returns so the next waiter
// is offered the seat immediately. Invoked best-effort.
type PromoteFunc func(ctx context.Context, eventID string)

// Pipeline expires reservations.
type Pipeline struct {
	reservations reservation.Repository
	entries      queue.Repository
	ledger       *ledger.Ledger
	notifier     notify.Notifier
	auditor      audit.Recorder
	metrics      *metrics.Metrics
	promote      PromoteFunc
	logger       *zap.Logger
}

func NewPipeline(
	reservations reservation.Repository,
	entries queue.Repository,
	led *ledger.Ledger,
	notifier notify.Notifier,
	auditor audit.Recorder,
	m *metrics.Metrics,
	promote PromoteFunc,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		reservations: reservations,
		entries:      entries,
		ledger:       led,
		notifier:     notifier,
		auditor:      auditor,
		metrics:      m,
		promote:      promote,
		logger:       logger,
	}
}

// Expire processes one reservation deadline. Safe under arbitrary duplicate
// and concurrent delivery; an error means the delivery should be retried.
func (p *Pipeline) Expire(ctx context.Context, reservationID string) error {
	res, err := p.reservations.Get(ctx, reservationID)
	if errors.Is(err, reservation.ErrNotFound) {
		// The job outlived its reservation. Benign.
		p.logger.Info("expiration: reservation gone", zap.String("reservation_id", reservationID))
		return nil
	}
	if err != nil {
		return err
	}
	if !res.IsPending() {
		// Paid, or a previous delivery finished the job. Benign.
		return nil
	}

	claimed, err := p.ledger.ClaimExpiration(ctx, res.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another delivery owns the fence. The reservation is still pending
		// (checked above), so that run either is in flight or crashed
		// mid-sequence; falling through completes the work, and the
		// conditional update below keeps the seat increment single.
		p.logger.Info("expiration: fence already claimed, completing",
			zap.String("reservation_id", res.ID))
	}

	won, err := p.reservations.MarkExpired(ctx, res.ID)
	if err != nil {
		return err
	}
	if !won {
		// Payment won the race, or a concurrent delivery finished first.
		// The winner owns the ledger move; retire without touching seats.
		return nil
	}

	if _, err := p.ledger.IncrementSeats(ctx, res.EventID); err != nil {
		return err
	}
	p.metrics.SeatsRestored.Inc()
	p.metrics.Expirations.Inc()

	if _, err := p.entries.MarkExpired(ctx, res.EventID, res.UserID); err != nil {
		return err
	}
	if err := p.ledger.ClearActive(ctx, res.EventID, res.UserID); err != nil {
		return err
	}

	p.auditor.Record(ctx, audit.Record{
		Action:        audit.ActionExpired,
		EventID:       res.EventID,
		UserID:        res.UserID,
		ReservationID: res.ID,
		OccurredAt:    time.Now().UTC(),
	})
	p.notifier.ReservationExpired(ctx, res.UserID, notify.ReservationExpiredData{
		ReservationID: res.ID,
		EventID:       res.EventID,
	})

	// The returned seat goes to the next waiter without waiting for the
	// periodic trigger.
	p.promote(ctx, res.EventID)
	return nil
}
