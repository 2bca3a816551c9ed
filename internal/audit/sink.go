package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ddl creates the analytics table on first run. MergeTree ordered by event
// and time serves the common "what happened to this event" query.
const ddl = `
CREATE TABLE IF NOT EXISTS queue_events (
	action         String,
	event_id       String,
	user_id        String,
	reservation_id String,
	occurred_at    DateTime64(6, 'UTC')
) ENGINE = MergeTree
ORDER BY (event_id, occurred_at)
`

// Sink consumes the audit stream from NATS into ClickHouse.
type Sink struct {
	conn   driver.Conn
	nc     *nats.Conn
	logger *zap.Logger
	sub    *nats.Subscription
}

func NewSink(conn driver.Conn, nc *nats.Conn, logger *zap.Logger) *Sink {
	return &Sink{conn: conn, nc: nc, logger: logger}
}

// Run creates the table, subscribes and blocks until the context ends.
func (s *Sink) Run(ctx context.Context) error {
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("audit: create table: %w", err)
	}

	sub, err := s.nc.Subscribe(Subject, func(msg *nats.Msg) {
		var r Record
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			s.logger.Warn("audit: decode record", zap.Error(err))
			return
		}
		if err := s.insert(ctx, r); err != nil {
			s.logger.Warn("audit: insert record", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("audit: subscribe: %w", err)
	}
	s.sub = sub

	<-ctx.Done()
	_ = sub.Unsubscribe()
	return nil
}

func (s *Sink) insert(ctx context.Context, r Record) error {
	return s.conn.Exec(ctx, `
		INSERT INTO queue_events (action, event_id, user_id, reservation_id, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(r.Action), r.EventID, r.UserID, r.ReservationID, r.OccurredAt)
}
