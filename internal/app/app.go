// Package app wires the service together and supervises its long-running
// workers.
package app

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pgkim42/ticket-queue/internal/audit"
	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/config"
	"github.com/pgkim42/ticket-queue/internal/events"
	"github.com/pgkim42/ticket-queue/internal/expiration"
	"github.com/pgkim42/ticket-queue/internal/gateway"
	handler "github.com/pgkim42/ticket-queue/internal/handler/http"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/notify"
	"github.com/pgkim42/ticket-queue/internal/payment"
	"github.com/pgkim42/ticket-queue/internal/promotion"
	"github.com/pgkim42/ticket-queue/internal/queueing"
	"github.com/pgkim42/ticket-queue/internal/repository/postgres"
	"github.com/pgkim42/ticket-queue/internal/seed"
	"github.com/pgkim42/ticket-queue/pkg/server"
	"github.com/pgkim42/ticket-queue/pkg/store"
)

// Run builds every component from configuration and blocks until the
// context ends or a worker fails.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Durable mirror.
	if err := postgres.Migrate(migrateDSN(cfg.Postgres.DSN)); err != nil {
		return err
	}
	pool, err := store.NewPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepo(pool)
	eventRepo := postgres.NewEventRepo(pool)
	entryRepo := postgres.NewQueueEntryRepo(pool)
	reservationRepo := postgres.NewReservationRepo(pool)

	if cfg.App.SeedDemo {
		if err := seed.DemoUsers(ctx, userRepo, logger); err != nil {
			return err
		}
	}

	// Coordinator.
	rdb, err := store.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	led := ledger.New(rdb)

	g, ctx := errgroup.WithContext(ctx)

	// Notification fan-out, push gateway and audit trail ride on NATS; the
	// service degrades to polling-only when it is not configured.
	var (
		notifier notify.Notifier = notify.Noop{}
		auditor  audit.Recorder  = audit.Noop{}
		wsHub    *gateway.Hub
	)
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)
	if cfg.NATS.URL != "" {
		nc, err := store.NewNATS(cfg.NATS.URL, cfg.App.Name)
		if err != nil {
			return err
		}
		defer nc.Close()
		notifier = notify.NewNATS(nc, logger)
		auditor = audit.NewNATS(nc, logger)
		wsHub = gateway.NewHub(nc, tokens, logger)

		if cfg.ClickHouse.Addr != "" {
			ch, err := store.NewClickHouse(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database,
				cfg.ClickHouse.Username, cfg.ClickHouse.Password)
			if err != nil {
				return err
			}
			sink := audit.NewSink(ch, nc, logger)
			g.Go(func() error { return sink.Run(ctx) })
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Services.
	eventsSvc := events.NewService(eventRepo, reservationRepo, led)
	queueingSvc := queueing.NewService(eventsSvc, entryRepo, reservationRepo, led, notifier, auditor, m)
	paymentSvc := payment.NewService(reservationRepo, entryRepo, led, notifier, auditor, m, logger)
	authSvc := auth.NewService(userRepo, tokens)

	// Delayed expiration jobs; the sweep below is the backstop either way.
	var scheduler promotion.Scheduler = expiration.NoopScheduler{}
	engine := promotion.NewEngine(led, entryRepo, reservationRepo, scheduler, notifier, auditor, m, logger,
		promotion.Config{PaymentWindow: cfg.Queue.PaymentWindow, MaxActive: cfg.Queue.MaxActiveUsers})

	promote := func(ctx context.Context, eventID string) {
		if _, err := engine.PromoteBatch(ctx, eventID); err != nil {
			logger.Warn("promote after seat return", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	pipeline := expiration.NewPipeline(reservationRepo, entryRepo, led, notifier, auditor, m, promote, logger)

	if cfg.RabbitMQ.URL != "" {
		conn, err := store.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		amqpScheduler, err := expiration.NewAMQPScheduler(conn)
		if err != nil {
			return err
		}
		engine.SetScheduler(amqpScheduler)
		consumer := expiration.NewConsumer(conn, pipeline, logger)
		g.Go(func() error { return consumer.Run(ctx) })
	}

	// Workers.
	trigger := promotion.NewTrigger(engine, eventRepo, cfg.Queue.PromoteEvery, logger)
	g.Go(func() error { return trigger.Run(ctx) })

	sweeper := expiration.NewSweeper(reservationRepo, pipeline, cfg.Queue.SweepEvery, logger)
	g.Go(func() error { return sweeper.Run(ctx) })

	// HTTP.
	var ws = handlerOrNil(wsHub)
	h := handler.NewHandler(authSvc, tokens, eventsSvc, queueingSvc, paymentSvc, ws, logger)
	srv := server.New(h.Router(), cfg.HTTP.Port, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout)
	g.Go(func() error { return srv.Run(ctx) })

	logger.Info("ticket-queue up",
		zap.String("port", cfg.HTTP.Port),
		zap.Duration("payment_window", cfg.Queue.PaymentWindow))
	return g.Wait()
}

// handlerOrNil keeps a nil hub from becoming a non-nil http.Handler
// interface value.
func handlerOrNil(h *gateway.Hub) nethttp.Handler {
	if h == nil {
		return nil
	}
	return h
}

// migrateDSN rewrites the pgx pool scheme into the one golang-migrate's
// pgx/v5 driver registers.
func migrateDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}
