package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct docker pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=reservation",
			"POSTGRES_PASSWORD=reservation",
			"POSTGRES_DB=reservation",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres container: %s", err)
	}

	hostPort := resource.GetHostPort("5432/tcp")
	databaseURL := fmt.Sprintf("postgres://reservation:reservation@%s/reservation?sslmode=disable", hostPort)

	resource.Expire(120)

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var poolErr error
		testPool, poolErr = pgxpool.New(ctx, databaseURL)
		if poolErr != nil {
			return poolErr
		}
		return testPool.Ping(ctx)
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if err := runMigrations(context.Background(), testPool); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	code := m.Run()

	testPool.Close()

	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}

	os.Exit(code)
}

// runMigrations inlines the same schema as migrations/000001-000005 so the
// contract tests don't depend on golang-migrate at test time.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		// 000001_create_schema
		`CREATE SCHEMA IF NOT EXISTS reservation;`,

		// 000002_create_reservations
		`CREATE TABLE reservation.reservations (
			id               UUID PRIMARY KEY,
			event_id         TEXT NOT NULL,
			caller_id        TEXT NOT NULL,
			quantity         INT NOT NULL CHECK (quantity > 0),
			seat_ids         TEXT[] NOT NULL DEFAULT '{}',
			status           TEXT NOT NULL,
			hold_expires_at  TIMESTAMPTZ,
			hold_token       TEXT NOT NULL DEFAULT '',
			idempotency_key  TEXT NOT NULL,
			version          INT NOT NULL DEFAULT 1,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX idx_reservations_expiry_sweep ON reservation.reservations (hold_expires_at) WHERE status = 'HOLD';`,
		`CREATE INDEX idx_reservations_event_id ON reservation.reservations (event_id);`,
		`CREATE UNIQUE INDEX idx_reservations_idempotency_key ON reservation.reservations (idempotency_key) WHERE idempotency_key != '';`,

		// 000003_create_orders
		`CREATE TABLE reservation.orders (
			id                 UUID PRIMARY KEY,
			reservation_id     UUID NOT NULL REFERENCES reservation.reservations (id),
			event_id           TEXT NOT NULL,
			caller_id          TEXT NOT NULL,
			amount             NUMERIC(18, 2) NOT NULL,
			currency           TEXT NOT NULL,
			status             TEXT NOT NULL,
			payment_intent_id  TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX idx_orders_reservation_id ON reservation.orders (reservation_id);`,

		// 000004_create_idempotency_keys
		`CREATE TABLE reservation.idempotency_keys (
			idempotency_key      TEXT PRIMARY KEY,
			request_fingerprint  TEXT NOT NULL,
			resource_id          TEXT NOT NULL DEFAULT '',
			status_code          INT NOT NULL,
			response_body        JSONB NOT NULL,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at           TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX idx_idempotency_keys_expires_at ON reservation.idempotency_keys (expires_at);`,

		// 000005_create_outbox
		`CREATE TABLE reservation.outbox (
			id             UUID PRIMARY KEY,
			event_type     TEXT NOT NULL,
			aggregate_id   UUID NOT NULL,
			trace_id       TEXT NOT NULL,
			payload        JSONB NOT NULL,
			status         TEXT NOT NULL,
			attempts       INT NOT NULL DEFAULT 0,
			next_retry_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error     TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at   TIMESTAMPTZ
		);`,
		`CREATE INDEX idx_outbox_fetch_unpublished ON reservation.outbox (status, next_retry_at);`,
	}

	for _, sql := range migrations {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("migration failed: %s: %w", sql[:min(50, len(sql))], err)
		}
	}

	return nil
}

func truncateTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE reservation.outbox, reservation.orders, reservation.idempotency_keys, reservation.reservations CASCADE
	`)
	return err
}

func getTestPool() *pgxpool.Pool {
	return testPool
}
