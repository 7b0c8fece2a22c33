package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// OrderRepository implements domain.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db Executor
}

func NewOrderRepository(db Executor) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save persists an order. Orders are only ever inserted once, at confirmation
// time, so a plain INSERT suffices (no optimistic lock needed).
func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservation.orders (
			id, reservation_id, event_id, caller_id,
			amount, currency, status, payment_intent_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		o.ID().String(),
		o.ReservationID().String(),
		o.EventID(),
		o.CallerID().String(),
		o.Amount().Amount,
		o.Amount().Currency,
		string(o.Status()),
		o.PaymentIntentID(),
		o.CreatedAt(),
		o.UpdatedAt(),
	)
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, reservation_id, event_id, caller_id,
			   amount, currency, status, payment_intent_id,
			   created_at, updated_at
		FROM reservation.orders WHERE id = $1`, id.String())
	return scanOrder(row)
}

func (r *OrderRepository) FindByReservationID(ctx context.Context, reservationID domain.ReservationID) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, reservation_id, event_id, caller_id,
			   amount, currency, status, payment_intent_id,
			   created_at, updated_at
		FROM reservation.orders WHERE reservation_id = $1`, reservationID.String())
	return scanOrder(row)
}

func scanOrder(row scannable) (*domain.Order, error) {
	var (
		id              string
		reservationID   string
		eventID         string
		callerID        string
		amount          decimal.Decimal
		currency        string
		status          string
		paymentIntentID string
		createdAt       time.Time
		updatedAt       time.Time
	)

	if err := row.Scan(&id, &reservationID, &eventID, &callerID,
		&amount, &currency, &status, &paymentIntentID,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	orderID, err := domain.ParseOrderID(id)
	if err != nil {
		return nil, domain.ErrCorruptData
	}
	resID, err := domain.ParseReservationID(reservationID)
	if err != nil {
		return nil, domain.ErrCorruptData
	}

	return domain.ReconstructOrder(
		orderID,
		resID,
		eventID,
		types.CallerID(callerID),
		types.NewMoney(amount, currency),
		domain.OrderStatus(status),
		paymentIntentID,
		createdAt,
		updatedAt,
	), nil
}
