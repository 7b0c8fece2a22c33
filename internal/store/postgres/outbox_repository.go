package postgres

import (
	"context"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// OutboxRepository implements domain.OutboxRepository using PostgreSQL.
//
// Events are written to the outbox within the same transaction as the domain
// change that produced them, then drained asynchronously by a separate
// process (cmd/outbox-drainer).
type OutboxRepository struct {
	db Executor
}

func NewOutboxRepository(db Executor) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append persists entry as part of the current transaction.
func (r *OutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservation.outbox (
			id, event_type, aggregate_id, trace_id, payload, status,
			attempts, next_retry_at, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID.String(),
		entry.EventType,
		entry.AggregateID.String(),
		entry.TraceID.String(),
		entry.Payload,
		string(entry.Status),
		entry.Attempts,
		entry.NextRetryAt,
		entry.LastError,
		entry.CreatedAt,
	)
	return err
}

// FetchUnpublished leases up to limit PENDING rows, or FAILED rows whose
// next_retry_at has passed, using FOR UPDATE SKIP LOCKED so multiple drainer
// replicas never double-process a row, and marks them PROCESSING before
// returning them.
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxEntry, error) {
	rows, err := r.db.Query(ctx, `
		WITH leased AS (
			SELECT id FROM reservation.outbox
			WHERE (status = $1)
			   OR (status = $2 AND next_retry_at <= $3)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE reservation.outbox o
		SET status = $5
		FROM leased
		WHERE o.id = leased.id
		RETURNING o.id, o.event_type, o.aggregate_id, o.trace_id, o.payload, o.status,
			o.attempts, o.next_retry_at, o.last_error, o.created_at, o.published_at`,
		string(domain.OutboxStatusPending), string(domain.OutboxStatusFailed), now, limit,
		string(domain.OutboxStatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MarkPublished conditionally updates PROCESSING -> PUBLISHED, stamping
// published_at so a reader can tell how long a row sat in the outbox.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id domain.OutboxID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE reservation.outbox SET status = $1, published_at = now() WHERE id = $2 AND status = $3`,
		string(domain.OutboxStatusPublished), id.String(), string(domain.OutboxStatusProcessing))
	return err
}

// MarkFailed records a failed publish attempt with the caller-supplied
// status and next_retry_at: the drainer passes FAILED with a backoff time
// (component H), or with a far-future time once attempts has reached the
// configured maximum.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id domain.OutboxID, status domain.OutboxStatus, attempts int, nextRetryAt time.Time, lastError string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE reservation.outbox
		SET status = $1, attempts = $2, next_retry_at = $3, last_error = $4
		WHERE id = $5`,
		string(status), attempts, nextRetryAt, lastError, id.String())
	return err
}

func scanOutboxEntry(row scannable) (*domain.OutboxEntry, error) {
	var (
		id          string
		eventType   string
		aggregateID string
		traceID     string
		payload     []byte
		status      string
		attempts    int
		nextRetryAt time.Time
		lastError   string
		createdAt   time.Time
		publishedAt *time.Time
	)

	if err := row.Scan(&id, &eventType, &aggregateID, &traceID, &payload, &status,
		&attempts, &nextRetryAt, &lastError, &createdAt, &publishedAt); err != nil {
		return nil, err
	}

	outboxID, err := domain.ParseOutboxID(id)
	if err != nil {
		return nil, domain.ErrCorruptData
	}
	aggID, err := domain.ParseReservationID(aggregateID)
	if err != nil {
		return nil, domain.ErrCorruptData
	}

	return &domain.OutboxEntry{
		ID:          outboxID,
		EventType:   eventType,
		AggregateID: aggID,
		TraceID:     types.TraceID(traceID),
		Payload:     payload,
		Status:      domain.OutboxStatus(status),
		Attempts:    attempts,
		NextRetryAt: nextRetryAt,
		LastError:   lastError,
		CreatedAt:   createdAt,
		PublishedAt: publishedAt,
	}, nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
