// Package queueing implements the queue-join protocol and the caller's view
// of their own place in the queue.
//
// Join is idempotent on (event, user): the durable mirror is consulted
// before the ledger, so a retry never touches the ledger's queue set and
// always answers with the same position. The ledger remains the authority
// for live positions; the mirror supplies the status.
package queueing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pgkim42/ticket-queue/internal/audit"
	"github.com/pgkim42/ticket-queue/internal/domain/event"
	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/notify"
)

var (
	// ErrSalesNotStarted is returned for a join before the sales window.
	ErrSalesNotStarted = errors.New("sales not started")
	// ErrSalesEnded is returned for a join after the sales window.
	ErrSalesEnded = errors.New("sales ended")
)

// EventGetter loads events; satisfied by the events catalog service, which
// caches reads.
type EventGetter interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

// JoinResult is the caller's position after a join.
type JoinResult struct {
	Position int64
	Status   queue.Status
}

// MyStatus is the authoritative self-view behind /events/:id/queue/me.
type MyStatus struct {
	Position      int64
	Status        queue.Status
	ReservationID *string
	ExpiresAt     *time.Time
}

// Service implements the queue-join protocol.
type Service struct {
	events       EventGetter
	entries      queue.Repository
	reservations reservation.Repository
	ledger       *ledger.Ledger
	notifier     notify.Notifier
	auditor      audit.Recorder
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	now          func() time.Time
}

func NewService(
	events EventGetter,
	entries queue.Repository,
	reservations reservation.Repository,
	led *ledger.Ledger,
	notifier notify.Notifier,
	auditor audit.Recorder,
	m *metrics.Metrics,
) *Service {
	return &Service{
		events:       events,
		entries:      entries,
		reservations: reservations,
		ledger:       led,
		notifier:     notifier,
		auditor:      auditor,
		metrics:      m,
		tracer:       otel.Tracer("queueing"),
		now:          time.Now,
	}
}

// Join places the user in the event queue, or answers idempotently when the
// user already has an entry.
func (s *Service) Join(ctx context.Context, eventID, userID string) (JoinResult, error) {
	ctx, span := s.tracer.Start(ctx, "queueing.Join")
	defer span.End()

	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return JoinResult{}, err
	}
	now := s.now()
	if e.SalesNotStarted(now) {
		return JoinResult{}, ErrSalesNotStarted
	}
	if !e.SalesOpen(now) {
		return JoinResult{}, ErrSalesEnded
	}

	// An existing entry answers the retry without touching the ledger's
	// queue set.
	existing, err := s.entries.GetByEventAndUser(ctx, eventID, userID)
	switch {
	case err == nil:
		pos, _, perr := s.ledger.QueuePosition(ctx, eventID, userID)
		if perr != nil {
			return JoinResult{}, perr
		}
		return JoinResult{Position: pos, Status: existing.Status}, nil
	case errors.Is(err, queue.ErrNotFound):
		// first join, fall through
	default:
		return JoinResult{}, err
	}

	pos, err := s.ledger.AddToQueue(ctx, eventID, userID)
	if err != nil {
		return JoinResult{}, err
	}
	if err := s.entries.Create(ctx, queue.New(eventID, userID, pos)); err != nil {
		// Ledger state is left intact; the entry is reconciled on the next
		// join retry, which will find the user already in the queue set.
		return JoinResult{}, fmt.Errorf("queueing: mirror join: %w", err)
	}

	s.metrics.QueueJoins.Inc()
	s.auditor.Record(ctx, audit.Record{
		Action:     audit.ActionJoined,
		EventID:    eventID,
		UserID:     userID,
		OccurredAt: now.UTC(),
	})
	s.notifier.QueuePosition(ctx, userID, notify.QueuePositionData{
		EventID:  eventID,
		Position: pos,
		Status:   string(queue.StatusWaiting),
	})
	return JoinResult{Position: pos, Status: queue.StatusWaiting}, nil
}

// Status returns the caller's authoritative queue view: live position from
// the ledger, status from the mirror, and the reservation deadline when the
// user is inside the payment window.
func (s *Service) Status(ctx context.Context, eventID, userID string) (MyStatus, error) {
	entry, err := s.entries.GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return MyStatus{}, err
	}

	out := MyStatus{Status: entry.Status, ReservationID: entry.ReservationID}
	if entry.IsWaiting() {
		pos, _, err := s.ledger.QueuePosition(ctx, eventID, userID)
		if err != nil {
			return MyStatus{}, err
		}
		out.Position = pos
	}
	if entry.IsActive() && entry.ReservationID != nil {
		res, err := s.reservations.Get(ctx, *entry.ReservationID)
		if err != nil {
			return MyStatus{}, err
		}
		out.ExpiresAt = &res.ExpiresAt
	}
	return out, nil
}
