package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// IdempotencyStore implements domain.IdempotencyStore using PostgreSQL.
type IdempotencyStore struct {
	db Executor
}

func NewIdempotencyStore(db Executor) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Get retrieves a live (non-expired) idempotency entry by key. Returns
// (nil, nil) when no entry exists; absence is not an error.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyEntry, error) {
	var entry domain.IdempotencyEntry
	err := s.db.QueryRow(ctx, `
		SELECT idempotency_key, request_fingerprint, resource_id, status_code, response_body, created_at, expires_at
		FROM reservation.idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > now()`, key).Scan(
		&entry.IdempotencyKey, &entry.RequestFingerprint, &entry.ResourceID,
		&entry.StatusCode, &entry.ResponseBody, &entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetIfAbsent atomically stores an entry if no live entry for the key
// exists, using a CTE so the insert attempt and the conflicting row lookup
// happen in a single round-trip.
func (s *IdempotencyStore) SetIfAbsent(ctx context.Context, entry *domain.IdempotencyEntry) (bool, *domain.IdempotencyEntry, error) {
	row := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO reservation.idempotency_keys AS ik (
				idempotency_key, request_fingerprint, resource_id, status_code, response_body, created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (idempotency_key) DO UPDATE SET
				request_fingerprint = EXCLUDED.request_fingerprint,
				resource_id = EXCLUDED.resource_id,
				status_code = EXCLUDED.status_code,
				response_body = EXCLUDED.response_body,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at
			WHERE ik.expires_at <= now()
			RETURNING idempotency_key, request_fingerprint, resource_id, status_code, response_body, created_at, expires_at
		)
		SELECT idempotency_key, request_fingerprint, resource_id, status_code, response_body, created_at, expires_at, true AS inserted
		FROM inserted
		UNION ALL
		SELECT idempotency_key, request_fingerprint, resource_id, status_code, response_body, created_at, expires_at, false AS inserted
		FROM reservation.idempotency_keys
		WHERE idempotency_key = $1 AND NOT EXISTS (SELECT 1 FROM inserted)`,
		entry.IdempotencyKey, entry.RequestFingerprint, entry.ResourceID,
		entry.StatusCode, entry.ResponseBody, entry.CreatedAt, entry.ExpiresAt)

	var existing domain.IdempotencyEntry
	var inserted bool
	if err := row.Scan(&existing.IdempotencyKey, &existing.RequestFingerprint, &existing.ResourceID,
		&existing.StatusCode, &existing.ResponseBody, &existing.CreatedAt, &existing.ExpiresAt, &inserted); err != nil {
		return false, nil, err
	}
	if inserted {
		return true, nil, nil
	}
	return false, &existing, nil
}

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)

// PruneExpired deletes idempotency entries whose expiry has passed. Invoked
// periodically by the expiry sweeper to keep the table bounded; expired
// entries no longer dedupe anything.
func (s *IdempotencyStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM reservation.idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
