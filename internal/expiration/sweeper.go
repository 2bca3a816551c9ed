package expiration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
)

// sweepBatch caps how many overdue reservations one sweep examines.
const sweepBatch = 256

// Sweeper periodically expires pending reservations whose deadline elapsed.
// It is the backstop behind the delayed-job path: a lost broker, a dropped
// message or a crashed consumer delays an expiration by at most one sweep
// interval, never loses it.
type Sweeper struct {
	reservations reservation.Repository
	pipeline     *Pipeline
	every        time.Duration
	logger       *zap.Logger
}

func NewSweeper(reservations reservation.Repository, pipeline *Pipeline, every time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{reservations: reservations, pipeline: pipeline, every: every, logger: logger}
}

// Run blocks until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	overdue, err := s.reservations.ListPendingBefore(ctx, time.Now(), sweepBatch)
	if err != nil {
		s.logger.Warn("expiration sweep: list overdue", zap.Error(err))
		return
	}
	for _, res := range overdue {
		if err := s.pipeline.Expire(ctx, res.ID); err != nil {
			s.logger.Warn("expiration sweep: expire",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
}
