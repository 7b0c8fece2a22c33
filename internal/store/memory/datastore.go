// Package memory provides an in-memory realization of the store gateway
// (component A) used by application-service tests, avoiding a real Postgres
// dependency for fast unit coverage of the reservation state machine.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// DataStore implements domain.AtomicExecutor and domain.Repositories
// in-memory. Concurrency: all access is guarded by a mutex.
type DataStore struct {
	mu              sync.RWMutex
	reservations    map[string]*domain.Reservation
	orders          map[string]*domain.Order
	idempotencyKeys map[string]*domain.IdempotencyEntry
	outboxEntries   []*domain.OutboxEntry

	reservationRepo  *ReservationRepository
	orderRepo        *OrderRepository
	idempotencyStore *IdempotencyStore
	outboxRepo       *OutboxRepository
}

// NewDataStore creates a new in-memory DataStore.
func NewDataStore() *DataStore {
	ds := &DataStore{
		reservations:    make(map[string]*domain.Reservation),
		orders:          make(map[string]*domain.Order),
		idempotencyKeys: make(map[string]*domain.IdempotencyEntry),
		outboxEntries:   make([]*domain.OutboxEntry, 0),
	}

	ds.reservationRepo = &ReservationRepository{store: ds}
	ds.orderRepo = &OrderRepository{store: ds}
	ds.idempotencyStore = &IdempotencyStore{store: ds}
	ds.outboxRepo = &OutboxRepository{store: ds}

	return ds
}

func (ds *DataStore) Reservations() domain.ReservationRepository { return ds.reservationRepo }
func (ds *DataStore) Orders() domain.OrderRepository             { return ds.orderRepo }
func (ds *DataStore) IdempotencyStore() domain.IdempotencyStore  { return ds.idempotencyStore }
func (ds *DataStore) Outbox() domain.OutboxRepository            { return ds.outboxRepo }

// Atomic locks the store, runs fn against a transactional snapshot, and
// commits staged changes only if fn succeeds.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	tx := &transactionalDataStore{
		parent:          ds,
		stagedRes:       make(map[string]*domain.Reservation),
		stagedOrders:    make(map[string]*domain.Order),
		stagedIdemp:     make(map[string]*domain.IdempotencyEntry),
		stagedOutbox:    make([]*domain.OutboxEntry, 0),
	}

	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.stagedRes {
		ds.reservations[k] = v
	}
	for k, v := range tx.stagedOrders {
		ds.orders[k] = v
	}
	for k, v := range tx.stagedIdemp {
		ds.idempotencyKeys[k] = v
	}
	ds.outboxEntries = append(ds.outboxEntries, tx.stagedOutbox...)

	return nil
}

// transactionalDataStore provides transaction isolation for memory operations.
type transactionalDataStore struct {
	parent       *DataStore
	stagedRes    map[string]*domain.Reservation
	stagedOrders map[string]*domain.Order
	stagedIdemp  map[string]*domain.IdempotencyEntry
	stagedOutbox []*domain.OutboxEntry
}

func (tx *transactionalDataStore) Reservations() domain.ReservationRepository {
	return &txReservationRepository{tx: tx}
}

func (tx *transactionalDataStore) Orders() domain.OrderRepository {
	return &txOrderRepository{tx: tx}
}

func (tx *transactionalDataStore) IdempotencyStore() domain.IdempotencyStore {
	return &txIdempotencyStore{tx: tx}
}

func (tx *transactionalDataStore) Outbox() domain.OutboxRepository {
	return &txOutboxRepository{tx: tx}
}

type txReservationRepository struct{ tx *transactionalDataStore }

func (r *txReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	r.tx.stagedRes[res.ID().String()] = res
	return nil
}

func (r *txReservationRepository) FindByID(ctx context.Context, id domain.ReservationID) (*domain.Reservation, error) {
	if res, ok := r.tx.stagedRes[id.String()]; ok {
		return res, nil
	}
	if res, ok := r.tx.parent.reservations[id.String()]; ok {
		return res, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (r *txReservationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	return r.tx.parent.reservationRepo.FindExpiredHolds(ctx, now, limit)
}

type txOrderRepository struct{ tx *transactionalDataStore }

func (r *txOrderRepository) Save(ctx context.Context, o *domain.Order) error {
	r.tx.stagedOrders[o.ID().String()] = o
	return nil
}

func (r *txOrderRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	if o, ok := r.tx.stagedOrders[id.String()]; ok {
		return o, nil
	}
	if o, ok := r.tx.parent.orders[id.String()]; ok {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *txOrderRepository) FindByReservationID(ctx context.Context, reservationID domain.ReservationID) (*domain.Order, error) {
	for _, o := range r.tx.stagedOrders {
		if o.ReservationID() == reservationID {
			return o, nil
		}
	}
	for _, o := range r.tx.parent.orders {
		if o.ReservationID() == reservationID {
			return o, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

type txIdempotencyStore struct{ tx *transactionalDataStore }

func (s *txIdempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyEntry, error) {
	if entry, ok := s.tx.stagedIdemp[key]; ok {
		return liveOrNil(entry), nil
	}
	if entry, ok := s.tx.parent.idempotencyKeys[key]; ok {
		return liveOrNil(entry), nil
	}
	return nil, nil
}

func (s *txIdempotencyStore) SetIfAbsent(ctx context.Context, entry *domain.IdempotencyEntry) (bool, *domain.IdempotencyEntry, error) {
	existing, _ := s.Get(ctx, entry.IdempotencyKey)
	if existing != nil {
		return false, existing, nil
	}
	s.tx.stagedIdemp[entry.IdempotencyKey] = entry
	return true, nil, nil
}

func liveOrNil(entry *domain.IdempotencyEntry) *domain.IdempotencyEntry {
	if time.Now().After(entry.ExpiresAt) {
		return nil
	}
	return entry
}

type txOutboxRepository struct{ tx *transactionalDataStore }

func (r *txOutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	r.tx.stagedOutbox = append(r.tx.stagedOutbox, entry)
	return nil
}

func (r *txOutboxRepository) FetchUnpublished(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxEntry, error) {
	return r.tx.parent.outboxRepo.FetchUnpublished(ctx, now, limit)
}

func (r *txOutboxRepository) MarkPublished(ctx context.Context, id domain.OutboxID) error {
	return r.tx.parent.outboxRepo.MarkPublished(ctx, id)
}

func (r *txOutboxRepository) MarkFailed(ctx context.Context, id domain.OutboxID, status domain.OutboxStatus, attempts int, nextRetryAt time.Time, lastError string) error {
	return r.tx.parent.outboxRepo.MarkFailed(ctx, id, status, attempts, nextRetryAt, lastError)
}

// Non-transactional repository implementations (for direct access outside Atomic).

// ReservationRepository provides non-transactional access to in-memory reservations.
type ReservationRepository struct{ store *DataStore }

func (r *ReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.reservations[res.ID().String()] = res
	return nil
}

func (r *ReservationRepository) FindByID(ctx context.Context, id domain.ReservationID) (*domain.Reservation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if res, ok := r.store.reservations[id.String()]; ok {
		return res, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (r *ReservationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Reservation
	for _, res := range r.store.reservations {
		if res.Status() == domain.ReservationStatusHold && !now.Before(res.HoldExpiresAt()) {
			out = append(out, res)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// OrderRepository provides non-transactional access to in-memory orders.
type OrderRepository struct{ store *DataStore }

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.orders[o.ID().String()] = o
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if o, ok := r.store.orders[id.String()]; ok {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *OrderRepository) FindByReservationID(ctx context.Context, reservationID domain.ReservationID) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.orders {
		if o.ReservationID() == reservationID {
			return o, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

// IdempotencyStore provides non-transactional access to in-memory idempotency records.
type IdempotencyStore struct{ store *DataStore }

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyEntry, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if entry, ok := s.store.idempotencyKeys[key]; ok {
		return liveOrNil(entry), nil
	}
	return nil, nil
}

func (s *IdempotencyStore) SetIfAbsent(ctx context.Context, entry *domain.IdempotencyEntry) (bool, *domain.IdempotencyEntry, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if existing, ok := s.store.idempotencyKeys[entry.IdempotencyKey]; ok && time.Now().Before(existing.ExpiresAt) {
		return false, existing, nil
	}
	s.store.idempotencyKeys[entry.IdempotencyKey] = entry
	return true, nil, nil
}

// OutboxRepository provides non-transactional access to in-memory outbox entries.
type OutboxRepository struct{ store *DataStore }

func (r *OutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outboxEntries = append(r.store.outboxEntries, entry)
	return nil
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.OutboxEntry
	for _, entry := range r.store.outboxEntries {
		eligible := entry.Status == domain.OutboxStatusPending ||
			(entry.Status == domain.OutboxStatusFailed && !entry.NextRetryAt.After(now))
		if eligible {
			entry.Status = domain.OutboxStatusProcessing
			out = append(out, entry)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id domain.OutboxID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, entry := range r.store.outboxEntries {
		if entry.ID == id {
			entry.Status = domain.OutboxStatusPublished
			now := time.Now()
			entry.PublishedAt = &now
			return nil
		}
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id domain.OutboxID, status domain.OutboxStatus, attempts int, nextRetryAt time.Time, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, entry := range r.store.outboxEntries {
		if entry.ID == id {
			entry.Status = status
			entry.Attempts = attempts
			entry.NextRetryAt = nextRetryAt
			entry.LastError = lastError
			return nil
		}
	}
	return nil
}

var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
