package domain

import (
	"context"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

// ReservationRepository defines the interface for reservation persistence.
type ReservationRepository interface {
	// Save persists a reservation aggregate. Implementations may return
	// ErrOptimisticLock if a version conflict is detected.
	Save(ctx context.Context, r *Reservation) error
	// FindByID retrieves a reservation by ID. Returns ErrReservationNotFound
	// when no record exists.
	FindByID(ctx context.Context, id ReservationID) (*Reservation, error)
	// FindExpiredHolds returns HOLD reservations whose hold has passed now,
	// used by the backstop sweeper. limit bounds a single sweep batch.
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

// OrderRepository defines the interface for order persistence.
type OrderRepository interface {
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id OrderID) (*Order, error)
	// FindByReservationID returns the order confirmed from a given reservation.
	// Returns ErrOrderNotFound when no record exists.
	FindByReservationID(ctx context.Context, reservationID ReservationID) (*Order, error)
}

// IdempotencyEntry represents a stored idempotency record. RequestFingerprint
// is the SHA-256 hash of the canonicalized request body; a replayed key with a
// different fingerprint is a conflict, not a replay.
type IdempotencyEntry struct {
	IdempotencyKey     string
	RequestFingerprint string
	ResourceID         string
	StatusCode         int
	ResponseBody       []byte
	CreatedAt          time.Time
	ExpiresAt          time.Time
}

// IdempotencyStore defines the interface for idempotency key storage.
type IdempotencyStore interface {
	// Get retrieves an idempotency entry by key. Returns (nil, nil) when no
	// live (non-expired) entry exists.
	Get(ctx context.Context, key string) (*IdempotencyEntry, error)
	// SetIfAbsent atomically stores an entry if no entry exists.
	// Returns (true, nil, nil) if created, (false, existing, nil) if already present.
	SetIfAbsent(ctx context.Context, entry *IdempotencyEntry) (created bool, existing *IdempotencyEntry, err error)
}

// OutboxEntry represents a domain event waiting to be published.
type OutboxEntry struct {
	ID          OutboxID
	EventType   string
	AggregateID ReservationID
	TraceID     types.TraceID
	Payload     []byte
	Status      OutboxStatus
	Attempts    int
	NextRetryAt time.Time
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// OutboxRepository defines the interface for the transactional outbox.
// Events are written within the same transaction as the domain change that
// produced them, then drained asynchronously by a separate process.
type OutboxRepository interface {
	Append(ctx context.Context, entry *OutboxEntry) error
	// FetchUnpublished leases up to limit PENDING or retry-eligible FAILED rows,
	// marking them PROCESSING so a concurrent drainer does not double-pick them.
	FetchUnpublished(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	MarkPublished(ctx context.Context, id OutboxID) error
	// MarkFailed records a failed publish attempt. The drainer passes
	// OutboxStatusFailed on every failure: below the configured maximum
	// nextRetryAt is the backoff-computed retry time; once attempts has
	// reached the maximum it is pushed far out so the row is not fetched again.
	MarkFailed(ctx context.Context, id OutboxID, status OutboxStatus, attempts int, nextRetryAt time.Time, lastError string) error
}

// Repositories provides access to all repositories within a transaction. Used
// with the Atomic pattern to ensure all operations share the same transaction.
type Repositories interface {
	Reservations() ReservationRepository
	Orders() OrderRepository
	IdempotencyStore() IdempotencyStore
	Outbox() OutboxRepository
}

// AtomicCallback is the function signature for atomic operations. Any error
// returned rolls the transaction back.
type AtomicCallback func(repos Repositories) error

// AtomicExecutor runs a callback within a single database transaction,
// leaving commit/rollback to the implementation.
//
// Example usage:
//
//	err := executor.Atomic(ctx, func(repos Repositories) error {
//	    r, err := repos.Reservations().FindByID(ctx, id)
//	    if err != nil {
//	        return err
//	    }
//	    if err := r.Confirm(); err != nil {
//	        return err
//	    }
//	    return repos.Reservations().Save(ctx, r)
//	})
type AtomicExecutor interface {
	Atomic(ctx context.Context, fn AtomicCallback) error
}

// InventoryClient is the outbound port to the external inventory/seat system (component B).
type InventoryClient interface {
	// CheckAvailability reports whether quantity seats are free, plus remaining,
	// the total free seat count. available=true with remaining=0 is possible
	// (inventory reports the pool as open but nothing left) and must be treated
	// the same as available=false by the caller.
	CheckAvailability(ctx context.Context, eventID string, quantity int) (available bool, remaining int, err error)
	// ReserveSeats places a provisional hold in inventory and returns the seat
	// IDs assigned plus an opaque hold token inventory expects back on commit/release.
	ReserveSeats(ctx context.Context, eventID string, quantity int, seatIDs []string) (assignedSeatIDs []string, holdToken string, err error)
	Commit(ctx context.Context, eventID string, holdToken string) error
	Release(ctx context.Context, eventID string, holdToken string) error
}

// EventSink is the outbound port the outbox drainer publishes through (component C).
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload []byte, traceID types.TraceID) error
}

// ExpiryScheduler is the outbound port for the in-process hold-expiry realization (component G).
type ExpiryScheduler interface {
	Schedule(reservationID ReservationID, fireAt time.Time)
	Cancel(reservationID ReservationID)
}
