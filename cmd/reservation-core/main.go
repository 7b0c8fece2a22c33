package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/config"
	"github.com/traffic-tacos/reservation-core/internal/common/logging"
	"github.com/traffic-tacos/reservation-core/internal/common/metrics"
	"github.com/traffic-tacos/reservation-core/internal/common/reqcontext"
	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/eventbus"
	"github.com/traffic-tacos/reservation-core/internal/expiry"
	"github.com/traffic-tacos/reservation-core/internal/inventory"
	reservationapi "github.com/traffic-tacos/reservation-core/internal/reservation/api"
	"github.com/traffic-tacos/reservation-core/internal/reservation/application"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/resilience"
	"github.com/traffic-tacos/reservation-core/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	startupCtx := reqcontext.WithCorrelationID(context.Background(), types.NewCorrelationID())

	logging.InfoContext(startupCtx, "starting reservation core",
		"port", cfg.Port,
		"environment", cfg.Environment,
	)

	pool, err := cfg.NewPostgresPool(startupCtx)
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

	// The scheduler needs an Expirer (the service), and the service needs a
	// scheduler: closed with a late-bound indirection rather than reordering
	// the two constructors, since each legitimately depends on the other.
	bridge := &expirerBridge{}
	scheduler := expiry.NewScheduler(bridge)

	service := application.NewReservationService(
		dataStore,
		inventoryClient,
		scheduler,
		time.Duration(cfg.HoldDurationSeconds)*time.Second,
		time.Duration(cfg.IdempotencyTTLSeconds)*time.Second,
	)
	bridge.service = service

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET /readyz", readyHandler(pool))
	mux.Handle("GET /metrics", metrics.Handler())

	reservationHandler := reservationapi.NewHandler(service)
	reservationHandler.RegisterRoutes(mux)

	logging.InfoContext(startupCtx, "reservation context initialized")

	handler := metrics.Middleware(requestContextMiddleware(mux, time.Duration(cfg.RequestDeadlineMillis)*time.Millisecond))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Event bus publisher is only used by the outbox drainer process; this
	// process constructs and closes a sink but never publishes through it, and
	// AMQPSink dials lazily on first use, so no broker connection is opened.
	sink := eventbus.NewAMQPSink(cfg.EventBusAMQPURL, cfg.EventBusExchange)
	defer sink.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logging.Info("server stopped")
}

// expirerBridge defers resolution of expiry.Expirer to after the
// application service exists, breaking the scheduler/service construction
// cycle without changing either constructor's signature.
type expirerBridge struct {
	service *application.ReservationService
}

func (b *expirerBridge) ExpireReservation(ctx context.Context, id domain.ReservationID, traceID types.TraceID) error {
	return b.service.ExpireReservation(ctx, id, traceID)
}

// requestContextMiddleware attaches a correlation id, trace id, and caller
// id to the request context, and bounds the request to a fixed deadline.
func requestContextMiddleware(next http.Handler, requestDeadline time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := types.CorrelationID(r.Header.Get("X-Correlation-ID"))
		if corrID.IsEmpty() {
			corrID = types.NewCorrelationID()
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestDeadline)
		defer cancel()

		ctx = reqcontext.WithCorrelationID(ctx, corrID)
		ctx = reqcontext.WithTraceID(ctx, types.NewTraceID())

		if callerID := r.Header.Get("X-Caller-ID"); callerID != "" {
			ctx = reqcontext.WithCallerID(ctx, types.CallerID(callerID))
		}

		w.Header().Set("X-Correlation-ID", corrID.String())

		logging.InfoContext(ctx, "http request", "method", r.Method, "path", r.URL.Path)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// readyHandler reports ready only once the database pool answers a ping,
// so a load balancer never routes traffic to an instance that can't serve.
func readyHandler(pool interface{ Ping(context.Context) error }) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "not_ready", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	}
}
