package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// DataStore is the Postgres realization of the key-value store gateway
// (component A): it binds the reservation, order, idempotency and outbox
// repositories to a shared connection pool and implements the Atomic pattern
// used by the application service to commit a domain mutation and its
// outbox row in a single transaction.
type DataStore struct {
	pool             *pgxpool.Pool
	reservationRepo  *ReservationRepository
	orderRepo        *OrderRepository
	idempotencyStore *IdempotencyStore
	outboxRepo       *OutboxRepository
}

// NewDataStore creates a new DataStore bound to pool.
func NewDataStore(pool *pgxpool.Pool) *DataStore {
	return &DataStore{
		pool:             pool,
		reservationRepo:  NewReservationRepository(pool),
		orderRepo:        NewOrderRepository(pool),
		idempotencyStore: NewIdempotencyStore(pool),
		outboxRepo:       NewOutboxRepository(pool),
	}
}

func (ds *DataStore) Reservations() domain.ReservationRepository { return ds.reservationRepo }
func (ds *DataStore) Orders() domain.OrderRepository             { return ds.orderRepo }
func (ds *DataStore) IdempotencyStore() domain.IdempotencyStore  { return ds.idempotencyStore }
func (ds *DataStore) Outbox() domain.OutboxRepository            { return ds.outboxRepo }

// withTx creates a new DataStore whose repositories share tx, the mechanism
// that gives the Atomic callback a transaction-scoped Repositories value.
func (ds *DataStore) withTx(tx pgx.Tx) *DataStore {
	return &DataStore{
		pool:             ds.pool,
		reservationRepo:  NewReservationRepository(tx),
		orderRepo:        NewOrderRepository(tx),
		idempotencyStore: NewIdempotencyStore(tx),
		outboxRepo:       NewOutboxRepository(tx),
	}
}

// Atomic executes fn inside a single database transaction, committing on a
// nil return and rolling back on error or panic.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) (err error) {
	tx, err := ds.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("tx error: %v, rollback error: %v", err, rbErr)
			}
		} else {
			if cErr := tx.Commit(ctx); cErr != nil {
				err = fmt.Errorf("commit transaction: %w", cErr)
			}
		}
	}()

	txDataStore := ds.withTx(tx)
	err = fn(txDataStore)
	return
}

var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
