package promotion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/domain/event"
)

// OnSaleLister enumerates events currently inside their sales window.
type OnSaleLister interface {
	ListOnSale(ctx context.Context) ([]event.Event, error)
}

// Trigger periodically runs a promotion batch for every on-sale event. A
// second trigger path exists on seat return: the expiration pipeline calls
// PromoteBatch directly. Concurrent promoters for the same event are safe.
type Trigger struct {
	engine *Engine
	events OnSaleLister
	every  time.Duration
	logger *zap.Logger
}

func NewTrigger(engine *Engine, events OnSaleLister, every time.Duration, logger *zap.Logger) *Trigger {
	return &Trigger{engine: engine, events: events, every: every, logger: logger}
}

// Run blocks until the context ends, promoting on a fixed cadence.
func (t *Trigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Trigger) tick(ctx context.Context) {
	onSale, err := t.events.ListOnSale(ctx)
	if err != nil {
		t.logger.Warn("promotion trigger: list on-sale events", zap.Error(err))
		return
	}
	for _, e := range onSale {
		if _, err := t.engine.PromoteBatch(ctx, e.ID); err != nil {
			t.logger.Warn("promotion trigger: batch",
				zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}
