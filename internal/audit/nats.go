package audit

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject is the NATS subject carrying audit records.
const Subject = "audit.transitions"

// NATS publishes records to the audit stream, fire-and-forget.
type NATS struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATS(nc *nats.Conn, logger *zap.Logger) *NATS {
	return &NATS{nc: nc, logger: logger}
}

func (n *NATS) Record(_ context.Context, r Record) {
	payload, err := json.Marshal(r)
	if err != nil {
		n.logger.Warn("audit: marshal", zap.Error(err))
		return
	}
	if err := n.nc.Publish(Subject, payload); err != nil {
		n.logger.Warn("audit: publish", zap.String("action", string(r.Action)), zap.Error(err))
	}
}
