// Package config loads application configuration from the environment.
//
// A .env file is loaded first when present (local development), then every
// section is populated with envconfig. Required settings without defaults
// fail fast at startup.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type (
	// Config aggregates every configurable section of the service.
	Config struct {
		App        App
		HTTP       HTTP
		Postgres   Postgres
		Redis      Redis
		NATS       NATS
		RabbitMQ   RabbitMQ
		ClickHouse ClickHouse
		JWT        JWT
		Queue      Queue
		Trace      Trace
	}

	App struct {
		Name      string `envconfig:"APP_NAME" default:"ticket-queue"`
		LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
		SeedDemo  bool   `envconfig:"SEED_DEMO" default:"false"`
	}

	HTTP struct {
		Port            string        `envconfig:"HTTP_PORT" default:"8080"`
		ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
		WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	}

	Postgres struct {
		DSN string `envconfig:"POSTGRES_DSN" required:"true"`
	}

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	NATS struct {
		URL string `envconfig:"NATS_URL"`
	}

	RabbitMQ struct {
		URL string `envconfig:"RABBITMQ_URL"`
	}

	ClickHouse struct {
		Addr     string `envconfig:"CLICKHOUSE_ADDR"`
		Database string `envconfig:"CLICKHOUSE_DATABASE" default:"default"`
		Username string `envconfig:"CLICKHOUSE_USERNAME" default:"default"`
		Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	}

	JWT struct {
		Secret string        `envconfig:"JWT_SECRET" required:"true"`
		TTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`
	}

	// Queue controls the concurrency core.
	//
	// PaymentWindow is W in the admission protocol: the duration an admitted
	// user has to pay before the reservation expires and the seat returns to
	// the pool.
	Queue struct {
		PaymentWindow  time.Duration `envconfig:"QUEUE_PAYMENT_WINDOW" default:"5m"`
		PromoteEvery   time.Duration `envconfig:"QUEUE_PROMOTE_EVERY" default:"3s"`
		SweepEvery     time.Duration `envconfig:"QUEUE_SWEEP_EVERY" default:"30s"`
		MaxActiveUsers int           `envconfig:"QUEUE_MAX_ACTIVE_USERS" default:"100"`
	}

	Trace struct {
		OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	}
)

// New reads the configuration from the environment.
func New() (Config, error) {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
