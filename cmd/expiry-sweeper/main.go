// Command expiry-sweeper runs the backstop hold-expiry sweeper as a
// standalone process: it periodically scans for holds past their deadline
// and expires them, recovering any hold whose in-process timer was lost to
// a reservation-core restart or missed fire.
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
	"github.com/traffic-tacos/reservation-core/internal/expiry"
	"github.com/traffic-tacos/reservation-core/internal/inventory"
	"github.com/traffic-tacos/reservation-core/internal/reservation/application"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/resilience"
	"github.com/traffic-tacos/reservation-core/internal/store/postgres"
)

// noopScheduler discards Schedule/Cancel calls. The sweeper process expires
// holds directly from its periodic scan rather than arming new timers, so it
// has no use for the in-process scheduler the HTTP process relies on.
type noopScheduler struct{}

func (noopScheduler) Schedule(domain.ReservationID, time.Time) {}
func (noopScheduler) Cancel(domain.ReservationID)              {}

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

	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureRatioThreshold: cfg.CircuitBreakerThreshold,
		Window:                uint32(cfg.CircuitBreakerWindow),
		OpenDuration:          time.Duration(cfg.CircuitBreakerOpenSeconds) * time.Second,
		HalfOpenMaxRequests:   uint32(cfg.CircuitBreakerHalfOpenReqs),
	})

	inventoryClient := inventory.NewClient(
		cfg.InventoryBaseURL,
		breakers,
		time.Duration(cfg.InventoryDeadlineMillis)*time.Millisecond,
	)

	service := application.NewReservationService(
		dataStore,
		inventoryClient,
		noopScheduler{},
		time.Duration(cfg.HoldDurationSeconds)*time.Second,
		time.Duration(cfg.IdempotencyTTLSeconds)*time.Second,
	)

	sweeper := expiry.NewSweeper(dataStore.Reservations(), dataStore.IdempotencyStore(), service, 0)

	interval := time.Duration(cfg.ExpirySweeperIntervalSeconds) * time.Second
	logging.Info("expiry sweeper started", "interval_seconds", cfg.ExpirySweeperIntervalSeconds)

	sweeper.RunForever(ctx, interval)

	logging.Info("expiry sweeper stopped")
}
