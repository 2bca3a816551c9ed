// ticket-queue is a first-come-first-served ticketing service: a serialized
// waiting queue in front of a fixed seat pool, with a short payment window
// per admitted user.
//
//	@title			ticket-queue API
//	@version		1.0
//	@description	FIFO ticketing queue with atomic seat admission.
//	@BasePath		/
//
//	@securityDefinitions.apikey	Bearer
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/app"
	"github.com/pgkim42/ticket-queue/internal/config"
	"github.com/pgkim42/ticket-queue/pkg/log"
	"github.com/pgkim42/ticket-queue/pkg/tracing"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic("config: " + err.Error())
	}

	logger, err := log.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		panic("logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Trace.OTLPEndpoint, cfg.App.Name)
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run", zap.Error(err))
		os.Exit(1)
	}
}
