package expiration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// waitQueue parks delayed messages; its dead-letter routing delivers
	// them to readyQueue when the per-message TTL elapses. All messages
	// carry the same delay (the payment window), so head-of-line TTL
	// blocking cannot occur.
	waitQueue  = "reservation.expire.wait"
	readyQueue = "reservation.expire.ready"
)

// AMQPScheduler publishes one delayed message per reservation; the message
// body is the reservation id.
type AMQPScheduler struct {
	ch *amqp.Channel
}

// NewAMQPScheduler declares the wait/ready queue pair on the given channel.
func NewAMQPScheduler(conn *amqp.Connection) (*AMQPScheduler, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("expiration: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(readyQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("expiration: declare ready queue: %w", err)
	}
	if _, err := ch.QueueDeclare(waitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": readyQueue,
	}); err != nil {
		return nil, fmt.Errorf("expiration: declare wait queue: %w", err)
	}
	return &AMQPScheduler{ch: ch}, nil
}

// Schedule enqueues the reservation's deadline job.
func (s *AMQPScheduler) Schedule(ctx context.Context, reservationID string, delay time.Duration) error {
	err := s.ch.PublishWithContext(ctx, "", waitQueue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "text/plain",
		Body:         []byte(reservationID),
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
	})
	if err != nil {
		return fmt.Errorf("expiration: publish delayed job: %w", err)
	}
	return nil
}

// NoopScheduler is used when RabbitMQ is not configured; the sweep alone
// drives expiration.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(context.Context, string, time.Duration) error { return nil }

// Consumer drains the ready queue into the pipeline. Deliveries are
// at-least-once; the pipeline's fence and conditional update make that safe.
type Consumer struct {
	conn     *amqp.Connection
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewConsumer(conn *amqp.Connection, pipeline *Pipeline, logger *zap.Logger) *Consumer {
	return &Consumer{conn: conn, pipeline: pipeline, logger: logger}
}

// Run blocks until the context ends. Each delivery is retried with
// exponential backoff before being requeued to the broker.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("expiration: open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("expiration: set qos: %w", err)
	}
	deliveries, err := ch.Consume(readyQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("expiration: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("expiration: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	reservationID := string(d.Body)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		return c.pipeline.Expire(ctx, reservationID)
	}, policy)
	if err != nil {
		c.logger.Error("expiration: job failed, requeueing",
			zap.String("reservation_id", reservationID), zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
