// Command outbox-drainer runs the standalone outbox polling loop: it leases
// unpublished rows written by the reservation core's transactional writes
// and publishes them to the event bus, independent of the HTTP process so
// publish latency and broker blips never slow down request handling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/config"
	"github.com/traffic-tacos/reservation-core/internal/common/logging"
	"github.com/traffic-tacos/reservation-core/internal/eventbus"
	"github.com/traffic-tacos/reservation-core/internal/outbox"
	"github.com/traffic-tacos/reservation-core/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := cfg.NewPostgresPool(ctx)
	if err != nil {
		logging.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dataStore := postgres.NewDataStore(pool)
	sink := eventbus.NewAMQPSink(cfg.EventBusAMQPURL, cfg.EventBusExchange)
	defer sink.Close()

	drainer := outbox.NewDrainer(dataStore.Outbox(), sink, outbox.Config{
		BatchSize:          cfg.OutboxBatchSize,
		MaxAttempts:        cfg.OutboxMaxAttempts,
		BackoffBaseSeconds: cfg.OutboxBackoffBaseSeconds,
		BackoffCapSeconds:  cfg.OutboxBackoffCapSeconds,
		PollInterval:       time.Duration(cfg.OutboxPollIntervalSeconds) * time.Second,
	})

	logging.Info("outbox drainer started",
		"poll_interval_seconds", cfg.OutboxPollIntervalSeconds,
		"batch_size", cfg.OutboxBatchSize,
	)

	drainer.RunForever(ctx)

	logging.Info("outbox drainer stopped")
}
