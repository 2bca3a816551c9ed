// Package promotion converts queue heads into held reservations without
// ever overselling.
//
// The admission protocol is decrement-first: the atomic decrement of the
// seat counter is the single moment of truth. A peek-then-decrement strategy
// would let two promoters both observe one free seat and both commit; here a
// temporarily negative counter is the safe sold-out signal and the caller
// restores it. Two promoters that peek the same head are serialized by the
// mirror's conditional WAITING → ACTIVE update — the loser treats its
// decrement as surplus, restores the seat and retires silently.
package promotion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/audit"
	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/notify"
)

// Kind classifies a promotion attempt.
type Kind string

const (
	// KindPromoted means a user was admitted and holds a fresh reservation.
	KindPromoted Kind = "promoted"
	// KindSoldOut means the head was turned away: the pool is exhausted.
	KindSoldOut Kind = "soldout"
	// KindEmpty means the queue had no head.
	KindEmpty Kind = "empty"
	// KindThrottled means the concurrent-active cap is reached; nobody was
	// examined.
	KindThrottled Kind = "throttled"
)

// Outcome is the result of one promotion attempt.
type Outcome struct {
	Kind        Kind
	UserID      string
	Reservation *reservation.Reservation
}

// Scheduler enqueues the delayed expiration job for a fresh reservation.
// Failures are absorbed: the periodic sweep is the backstop.
type Scheduler interface {
	Schedule(ctx context.Context, reservationID string, delay time.Duration) error
}

// Config bounds the engine.
type Config struct {
	// PaymentWindow is W: how long an admitted user may take to pay.
	PaymentWindow time.Duration
	// MaxActive caps concurrently admitted users per event.
	MaxActive int
}

// Engine admits queue heads into the payment window.
type Engine struct {
	ledger       *ledger.Ledger
	entries      queue.Repository
	reservations reservation.Repository
	scheduler    Scheduler
	notifier     notify.Notifier
	auditor      audit.Recorder
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          Config
	tracer       trace.Tracer
}

func NewEngine(
	led *ledger.Ledger,
	entries queue.Repository,
	reservations reservation.Repository,
	scheduler Scheduler,
	notifier notify.Notifier,
	auditor audit.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		ledger:       led,
		entries:      entries,
		reservations: reservations,
		scheduler:    scheduler,
		notifier:     notifier,
		auditor:      auditor,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
		tracer:       otel.Tracer("promotion"),
	}
}

// SetScheduler swaps the expiration scheduler. Used at wiring time: the
// delayed-job backend is optional and the sweep covers its absence.
func (e *Engine) SetScheduler(s Scheduler) { e.scheduler = s }

// raceRetries bounds how often one PromoteOne call retries after losing the
// head to a concurrent promoter.
const raceRetries = 8

// PromoteOne admits at most one user. It retries internally when a
// concurrent promoter wins the same head, moving on to the next head.
func (e *Engine) PromoteOne(ctx context.Context, eventID string) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "promotion.PromoteOne")
	defer span.End()

	active, err := e.ledger.ActiveCount(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if active >= int64(e.cfg.MaxActive) {
		e.metrics.Promotions.WithLabelValues(string(KindThrottled)).Inc()
		return Outcome{Kind: KindThrottled}, nil
	}

	for range raceRetries {
		out, retry, err := e.promoteHead(ctx, eventID)
		if err != nil {
			return Outcome{}, err
		}
		if retry {
			continue
		}
		e.metrics.Promotions.WithLabelValues(string(out.Kind)).Inc()
		return out, nil
	}
	// Every attempt lost its head to a faster promoter; the queue is being
	// drained by someone else.
	e.metrics.Promotions.WithLabelValues(string(KindEmpty)).Inc()
	return Outcome{Kind: KindEmpty}, nil
}

// promoteHead runs one round of the decrement-first protocol. retry is true
// when the head was lost to a concurrent promoter and the caller should look
// at the next head.
func (e *Engine) promoteHead(ctx context.Context, eventID string) (out Outcome, retry bool, err error) {
	head, ok, err := e.ledger.PeekHead(ctx, eventID)
	if err != nil {
		return Outcome{}, false, err
	}
	if !ok {
		return Outcome{Kind: KindEmpty}, false, nil
	}

	v, err := e.ledger.DecrementSeats(ctx, eventID)
	if err != nil {
		return Outcome{}, false, err
	}
	if v < 0 {
		return e.soldOut(ctx, eventID, head)
	}
	return e.admit(ctx, eventID, head)
}

// admit materializes the reservation for a head that won a seat.
func (e *Engine) admit(ctx context.Context, eventID, userID string) (Outcome, bool, error) {
	res := reservation.New(eventID, userID, e.cfg.PaymentWindow)
	if err := e.reservations.Create(ctx, res); err != nil {
		e.restoreSeat(ctx, eventID)
		return Outcome{}, false, err
	}

	won, err := e.entries.MarkActive(ctx, eventID, userID, res.ID)
	if err != nil {
		e.retireOrphan(ctx, eventID, res.ID)
		return Outcome{}, false, err
	}
	if !won {
		// A concurrent promoter admitted (or expired) this head first:
		// retire the orphaned reservation row, then clear the head from the
		// queue set. The winner removes it too when it gets there, but it
		// may have crashed first — leaving it would wedge every later
		// promoter on the same head.
		e.retireOrphan(ctx, eventID, res.ID)
		if err := e.ledger.RemoveFromQueue(ctx, eventID, userID); err != nil {
			return Outcome{}, false, err
		}
		return Outcome{}, true, nil
	}

	if err := e.ledger.RemoveFromQueue(ctx, eventID, userID); err != nil {
		return Outcome{}, false, err
	}
	if err := e.ledger.SetActive(ctx, eventID, userID, e.cfg.PaymentWindow); err != nil {
		return Outcome{}, false, err
	}
	if err := e.scheduler.Schedule(ctx, res.ID, e.cfg.PaymentWindow); err != nil {
		// The sweep picks up reservations whose delayed job was lost.
		e.logger.Warn("promotion: schedule expiration",
			zap.String("reservation_id", res.ID), zap.Error(err))
	}

	e.auditor.Record(ctx, audit.Record{
		Action:        audit.ActionPromoted,
		EventID:       eventID,
		UserID:        userID,
		ReservationID: res.ID,
		OccurredAt:    time.Now().UTC(),
	})
	e.notifier.QueueActive(ctx, userID, notify.QueueActiveData{
		EventID:       eventID,
		ReservationID: res.ID,
		ExpiresAt:     res.ExpiresAt,
	})
	return Outcome{Kind: KindPromoted, UserID: userID, Reservation: &res}, false, nil
}

// soldOut turns the head away after a decrement found no seat. The entry
// transition is conditional on WAITING: a head a concurrent promoter just
// admitted is ACTIVE and must not be touched or notified.
func (e *Engine) soldOut(ctx context.Context, eventID, userID string) (Outcome, bool, error) {
	// Restore the counter to its true floor before anything else.
	e.restoreSeat(ctx, eventID)

	won, err := e.entries.MarkExpiredFromWaiting(ctx, eventID, userID)
	if err != nil {
		return Outcome{}, false, err
	}
	if err := e.ledger.RemoveFromQueue(ctx, eventID, userID); err != nil {
		return Outcome{}, false, err
	}
	if !won {
		// A concurrent promoter already settled this head; its payment
		// window, if any, stays intact.
		return Outcome{}, true, nil
	}

	e.auditor.Record(ctx, audit.Record{
		Action:     audit.ActionSoldOut,
		EventID:    eventID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
	e.notifier.QueueSoldOut(ctx, userID, notify.QueueSoldOutData{EventID: eventID})
	return Outcome{Kind: KindSoldOut, UserID: userID}, false, nil
}

// restoreSeat compensates a decrement on a best-effort basis. The counter is
// the one piece of state that must not silently leak, so a failure is loud.
func (e *Engine) restoreSeat(ctx context.Context, eventID string) {
	if _, err := e.ledger.IncrementSeats(ctx, eventID); err != nil {
		e.logger.Error("promotion: restore seat", zap.String("event_id", eventID), zap.Error(err))
	}
}

// retireOrphan settles a reservation whose admission lost the head race; the
// row never reached any user. The caller's surplus decrement is restored
// here, and only after winning the conditional transition: a row left
// PENDING is later expired by the sweep, which performs the compensating
// increment itself — restoring in both places would drift the counter above
// truth.
func (e *Engine) retireOrphan(ctx context.Context, eventID, reservationID string) {
	won, err := e.reservations.MarkExpired(ctx, reservationID)
	if err != nil {
		e.logger.Error("promotion: retire orphan reservation",
			zap.String("reservation_id", reservationID), zap.Error(err))
		return
	}
	if !won {
		return
	}
	e.restoreSeat(ctx, eventID)
}

// PromoteBatch admits users until the queue empties, the pool sells out or
// the concurrent-active cap is reached. Outcomes are returned in admission
// order.
func (e *Engine) PromoteBatch(ctx context.Context, eventID string) ([]Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "promotion.PromoteBatch")
	defer span.End()

	active, err := e.ledger.ActiveCount(ctx, eventID)
	if err != nil {
		return nil, err
	}
	slots := int64(e.cfg.MaxActive) - active
	if slots <= 0 {
		return []Outcome{{Kind: KindThrottled}}, nil
	}

	var outcomes []Outcome
	for i := int64(0); i < slots; i++ {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, err := e.PromoteOne(ctx, eventID)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
		if out.Kind == KindEmpty || out.Kind == KindThrottled {
			break
		}
		// A sold-out outcome keeps draining: every remaining waiter gets
		// their terminal answer in order.
	}
	return outcomes, nil
}
