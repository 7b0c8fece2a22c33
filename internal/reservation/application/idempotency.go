package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/metrics"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// idempotencyConflictError is returned when a concurrent request won the race.
// The transaction is rolled back and the existing response is returned instead.
type idempotencyConflictError struct {
	existingEntry *domain.IdempotencyEntry
}

func (e *idempotencyConflictError) Error() string {
	return "idempotency conflict: concurrent request completed first"
}

// fingerprint hashes the canonicalized request so a replayed key can be told
// apart from a key reused for a different request body.
func fingerprint(req any) (string, error) {
	canonical, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// cachedOutcome is the envelope persisted as an idempotency entry's
// ResponseBody: either a successful response or a classified business error,
// never both. Storing both shapes through the same envelope is what lets a
// replayed request short-circuit a business conflict (SEAT_UNAVAILABLE,
// RESERVATION_EXPIRED, ...) without re-running side effects against
// inventory, not just replay a prior success.
type cachedOutcome struct {
	Response  json.RawMessage  `json:"response,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	ErrorMsg  string           `json:"error_message,omitempty"`
}

// businessErrorStatus maps a cacheable business error kind to the status
// code recorded alongside the cached outcome. Every cacheable kind
// (isCacheableBusinessError) is a state conflict, so this is currently
// constant, but kept as a function since the API layer's own status mapping
// (api/handler.go's handleDomainError) may diverge per kind later.
func businessErrorStatus(kind domain.ErrorKind) int {
	return http.StatusConflict
}

// cacheableBusinessErrorKinds are the error kinds the idempotency layer
// caches alongside successful responses, per the no-side-effects-on-replay
// requirement for business conflicts. Transient infrastructure errors
// (upstream timeouts, store unavailability) and not-found are deliberately
// excluded: those should be retried against the real dependency, not frozen.
func isCacheableBusinessError(kind domain.ErrorKind) bool {
	switch kind {
	case domain.KindSeatUnavailable, domain.KindInventoryConflict, domain.KindReservationExpired, domain.KindInvalidState:
		return true
	default:
		return false
	}
}

// checkIdempotency checks whether an outcome already exists for key. If the
// stored fingerprint does not match req, returns a KindIdempotencyConflict
// domain error rather than silently replaying the wrong response. If the
// cached outcome was a business error, that error is replayed verbatim
// instead of the success type T.
func checkIdempotency[T any](ctx context.Context, store domain.IdempotencyStore, key string, req any) (*T, error) {
	existing, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	fp, err := fingerprint(req)
	if err != nil {
		return nil, err
	}
	if existing.RequestFingerprint != fp {
		metrics.RecordIdempotencyConflict()
		return nil, domain.NewError(domain.KindIdempotencyConflict, "idempotency key reused with a different request body")
	}
	var outcome cachedOutcome
	if err := json.Unmarshal(existing.ResponseBody, &outcome); err != nil {
		return nil, err
	}
	metrics.RecordIdempotencyCacheHit()
	if outcome.ErrorKind != "" {
		return nil, domain.NewError(outcome.ErrorKind, outcome.ErrorMsg)
	}
	var resp T
	if err := json.Unmarshal(outcome.Response, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// handleIdempotencyConflict unwraps an idempotencyConflictError into the
// outcome it lost the race to. Returns (response, nil) for a cached success,
// (nil, businessErr) for a cached business error, (nil, original err) when
// err was not an idempotency conflict at all, and (nil, nil) for a nil err.
func handleIdempotencyConflict[T any](err error) (*T, error) {
	var conflictErr *idempotencyConflictError
	if !errors.As(err, &conflictErr) {
		return nil, err
	}
	var outcome cachedOutcome
	if unmarshalErr := json.Unmarshal(conflictErr.existingEntry.ResponseBody, &outcome); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	if outcome.ErrorKind != "" {
		return nil, domain.NewError(outcome.ErrorKind, outcome.ErrorMsg)
	}
	var resp T
	if unmarshalErr := json.Unmarshal(outcome.Response, &resp); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	return &resp, nil
}

// storeIdempotency atomically stores a successful outcome, preventing
// time-of-check-to-time-of-use races between concurrent replays. Returns
// idempotencyConflictError if a concurrent request completed first.
func storeIdempotency[T any](
	ctx context.Context,
	store domain.IdempotencyStore,
	idempotencyKey string,
	req any,
	resourceID string,
	statusCode int,
	response *T,
	now time.Time,
	ttl time.Duration,
) error {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return err
	}
	outcomeBody, err := json.Marshal(cachedOutcome{Response: responseJSON})
	if err != nil {
		return err
	}
	return setIdempotencyOutcome(ctx, store, idempotencyKey, req, resourceID, statusCode, outcomeBody, now, ttl)
}

// storeIdempotencyError caches a classified business error alongside the
// idempotency key so a replayed request returns the same conflict instead of
// re-running side effects against inventory. Best-effort: callers should log
// rather than fail the request if this returns an error.
func storeIdempotencyError(
	ctx context.Context,
	store domain.IdempotencyStore,
	idempotencyKey string,
	req any,
	now time.Time,
	ttl time.Duration,
	domErr *domain.Error,
) error {
	outcomeBody, err := json.Marshal(cachedOutcome{ErrorKind: domErr.Kind, ErrorMsg: domErr.Message})
	if err != nil {
		return err
	}
	return setIdempotencyOutcome(ctx, store, idempotencyKey, req, "", businessErrorStatus(domErr.Kind), outcomeBody, now, ttl)
}

func setIdempotencyOutcome(
	ctx context.Context,
	store domain.IdempotencyStore,
	idempotencyKey string,
	req any,
	resourceID string,
	statusCode int,
	outcomeBody []byte,
	now time.Time,
	ttl time.Duration,
) error {
	fp, err := fingerprint(req)
	if err != nil {
		return err
	}
	created, existingEntry, err := store.SetIfAbsent(ctx, &domain.IdempotencyEntry{
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: fp,
		ResourceID:         resourceID,
		StatusCode:         statusCode,
		ResponseBody:       outcomeBody,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	})
	if err != nil {
		return err
	}
	if !created {
		return &idempotencyConflictError{existingEntry: existingEntry}
	}
	return nil
}
