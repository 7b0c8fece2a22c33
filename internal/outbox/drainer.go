// Package outbox implements the outbox drainer (component F): a poller that
// leases unpublished rows written by the reservation service's transactional
// writes and publishes them to the event bus, retrying with backoff on
// failure and giving up after a bounded number of attempts.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/resilience"
)

// abandonedRetryHorizon is how far out next_retry_at is pushed once an
// entry's attempts reach MaxAttempts, keeping it out of FetchUnpublished's window.
const abandonedRetryHorizon = 365 * 24 * time.Hour

// Config tunes the drainer's poll cadence and retry schedule.
type Config struct {
	BatchSize          int
	MaxAttempts        int
	BackoffBaseSeconds int
	BackoffCapSeconds  int
	PollInterval       time.Duration
}

// Drainer polls the outbox repository for unpublished rows and publishes
// them to the event sink. Each row is leased (status flips to PROCESSING)
// by the repository's FetchUnpublished call before the drainer ever sees
// it, so two drainer instances never double-publish the same row.
type Drainer struct {
	repo domain.OutboxRepository
	sink domain.EventSink
	cfg  Config
}

func NewDrainer(repo domain.OutboxRepository, sink domain.EventSink, cfg Config) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Drainer{repo: repo, sink: sink, cfg: cfg}
}

// Run drains one batch: fetches leased rows and publishes each in turn.
func (d *Drainer) Run(ctx context.Context) error {
	now := time.Now()

	entries, err := d.repo.FetchUnpublished(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		d.publishOne(ctx, entry)
	}

	return nil
}

// publishOne publishes a single leased entry and records its outcome. A
// publish failure never aborts the batch; the row is marked FAILED with a
// backoff-scheduled retry (or abandoned once attempts reach MaxAttempts) and the drainer
// moves on to the next entry.
func (d *Drainer) publishOne(ctx context.Context, entry *domain.OutboxEntry) {
	err := d.sink.Publish(ctx, entry.EventType, entry.Payload, entry.TraceID)
	if err == nil {
		if markErr := d.repo.MarkPublished(ctx, entry.ID); markErr != nil {
			slog.Error("failed to mark outbox entry published", "outbox_id", entry.ID.String(), "error", markErr)
		}
		return
	}

	attempts := entry.Attempts + 1

	var nextRetryAt time.Time
	if attempts >= d.cfg.MaxAttempts {
		// No terminal "dead" status exists; pushing next_retry_at far out
		// keeps the row out of FetchUnpublished's eligibility window
		// without a schema change, while still leaving it inspectable.
		nextRetryAt = time.Now().Add(abandonedRetryHorizon)
		slog.Error("outbox entry exceeded max publish attempts, giving up",
			"outbox_id", entry.ID.String(), "event_type", entry.EventType, "attempts", attempts, "error", err)
	} else {
		nextRetryAt = time.Now().Add(resilience.OutboxBackoff(attempts, d.cfg.BackoffBaseSeconds, d.cfg.BackoffCapSeconds))
		slog.Warn("outbox publish failed, scheduling retry",
			"outbox_id", entry.ID.String(), "event_type", entry.EventType, "attempts", attempts, "error", err)
	}

	if markErr := d.repo.MarkFailed(ctx, entry.ID, domain.OutboxStatusFailed, attempts, nextRetryAt, err.Error()); markErr != nil {
		slog.Error("failed to mark outbox entry failed", "outbox_id", entry.ID.String(), "error", markErr)
	}
}

// RunForever invokes Run on a fixed interval until ctx is cancelled.
func (d *Drainer) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Run(ctx); err != nil {
				slog.Error("outbox drain failed", "error", err)
			}
		}
	}
}
