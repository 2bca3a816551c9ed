package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the NATS subject tree for user rooms; the websocket
// gateway subscribes to SubjectPrefix + ".>" and routes by the final token.
const SubjectPrefix = "notify.user"

// UserSubject returns the subject for one user's room.
func UserSubject(userID string) string { return SubjectPrefix + "." + userID }

// NATS publishes notifications to per-user subjects. Publishing is
// fire-and-forget: errors are logged, never returned.
type NATS struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATS(nc *nats.Conn, logger *zap.Logger) *NATS {
	return &NATS{nc: nc, logger: logger}
}

func (n *NATS) publish(userID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("notify: marshal", zap.String("event", msg.Event), zap.Error(err))
		return
	}
	if err := n.nc.Publish(UserSubject(userID), payload); err != nil {
		n.logger.Warn("notify: publish",
			zap.String("event", msg.Event),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (n *NATS) QueuePosition(_ context.Context, userID string, data QueuePositionData) {
	n.publish(userID, Message{Event: EventQueuePosition, Data: data})
}

func (n *NATS) QueueActive(_ context.Context, userID string, data QueueActiveData) {
	n.publish(userID, Message{Event: EventQueueActive, Data: data})
}

func (n *NATS) QueueSoldOut(_ context.Context, userID string, data QueueSoldOutData) {
	n.publish(userID, Message{Event: EventQueueSoldOut, Data: data})
}

func (n *NATS) ReservationExpired(_ context.Context, userID string, data ReservationExpiredData) {
	n.publish(userID, Message{Event: EventReservationExpired, Data: data})
}

func (n *NATS) ReservationPaid(_ context.Context, userID string, data ReservationPaidData) {
	n.publish(userID, Message{Event: EventReservationPaid, Data: data})
}
