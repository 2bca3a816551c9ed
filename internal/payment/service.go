// Package payment settles a pending reservation inside its window.
//
// Payment races deadline expiration on the same conditional update from
// PENDING_PAYMENT; the store lets exactly one side affect the row. Payment
// leaves the seat counter untouched — a paid seat stays consumed — while
// the expiration side returns it.
package payment

import (
	"context"
	"errors"
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

var (
	// ErrWrongOwner is returned when the claimant does not own the
	// reservation.
	ErrWrongOwner = errors.New("reservation belongs to another user")
	// ErrAlreadyFinal is returned when the reservation is terminal.
	ErrAlreadyFinal = errors.New("reservation is no longer payable")
	// ErrWindowElapsed is returned when the deadline has passed. The
	// reservation is not expired here; the expiration pipeline owns that.
	ErrWindowElapsed = errors.New("payment window elapsed")
)

// Service processes payments.
type Service struct {
	reservations reservation.Repository
	entries      queue.Repository
	ledger       *ledger.Ledger
	notifier     notify.Notifier
	auditor      audit.Recorder
	metrics      *metrics.Metrics
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

func NewService(
	reservations reservation.Repository,
	entries queue.Repository,
	led *ledger.Ledger,
	notifier notify.Notifier,
	auditor audit.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		reservations: reservations,
		entries:      entries,
		ledger:       led,
		notifier:     notifier,
		auditor:      auditor,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("payment"),
		now:          time.Now,
	}
}

// Pay settles the reservation for the claiming user.
func (s *Service) Pay(ctx context.Context, reservationID, userID string) (reservation.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Pay")
	defer span.End()

	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if res.UserID != userID {
		s.metrics.Payments.WithLabelValues("forbidden").Inc()
		return reservation.Reservation{}, ErrWrongOwner
	}
	if !res.IsPending() {
		s.metrics.Payments.WithLabelValues("terminal").Inc()
		return reservation.Reservation{}, ErrAlreadyFinal
	}
	now := s.now().UTC()
	if res.DeadlineElapsed(now) {
		s.metrics.Payments.WithLabelValues("elapsed").Inc()
		return reservation.Reservation{}, ErrWindowElapsed
	}

	won, err := s.reservations.MarkPaid(ctx, res.ID, now)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !won {
		// Expiration committed first; retire without any seat-ledger move.
		s.metrics.Payments.WithLabelValues("lost_race").Inc()
		return reservation.Reservation{}, ErrAlreadyFinal
	}

	if _, err := s.entries.MarkDone(ctx, res.EventID, res.UserID); err != nil {
		// Ledger and reservation are settled; the entry heals on the next
		// reconciliation pass.
		s.logger.Error("payment: mark entry done",
			zap.String("reservation_id", res.ID), zap.Error(err))
	}
	if err := s.ledger.ClearActive(ctx, res.EventID, res.UserID); err != nil {
		s.logger.Warn("payment: clear active marker",
			zap.String("reservation_id", res.ID), zap.Error(err))
	}

	res.Status = reservation.StatusPaid
	res.PaidAt = &now

	s.metrics.Payments.WithLabelValues("paid").Inc()
	s.auditor.Record(ctx, audit.Record{
		Action:        audit.ActionPaid,
		EventID:       res.EventID,
		UserID:        res.UserID,
		ReservationID: res.ID,
		OccurredAt:    now,
	})
	s.notifier.ReservationPaid(ctx, res.UserID, notify.ReservationPaidData{
		ReservationID: res.ID,
		EventID:       res.EventID,
		PaidAt:        now,
	})
	return res, nil
}
