package domain

import (
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

// Order is created at confirmation time. The reservation remains the source
// of truth for the hold lifecycle; ReservationID here is a back-reference,
// not ownership.
type Order struct {
	id              OrderID
	reservationID   ReservationID
	eventID         string
	callerID        types.CallerID
	amount          types.Money
	status          OrderStatus
	paymentIntentID string
	createdAt       time.Time
	updatedAt       time.Time
}

// NewOrder creates a new order in the CONFIRMED state (the only path that
// creates an order is a successful reservation confirmation).
func NewOrder(reservationID ReservationID, eventID string, callerID types.CallerID, amount types.Money, paymentIntentID string) *Order {
	now := time.Now()
	return &Order{
		id:              NewOrderID(),
		reservationID:   reservationID,
		eventID:         eventID,
		callerID:        callerID,
		amount:          amount,
		status:          OrderStatusConfirmed,
		paymentIntentID: paymentIntentID,
		createdAt:       now,
		updatedAt:       now,
	}
}

// ReconstructOrder rebuilds an Order from persistence.
func ReconstructOrder(
	id OrderID,
	reservationID ReservationID,
	eventID string,
	callerID types.CallerID,
	amount types.Money,
	status OrderStatus,
	paymentIntentID string,
	createdAt time.Time,
	updatedAt time.Time,
) *Order {
	return &Order{
		id:              id,
		reservationID:   reservationID,
		eventID:         eventID,
		callerID:        callerID,
		amount:          amount,
		status:          status,
		paymentIntentID: paymentIntentID,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (o *Order) ID() OrderID                    { return o.id }
func (o *Order) ReservationID() ReservationID   { return o.reservationID }
func (o *Order) EventID() string                { return o.eventID }
func (o *Order) CallerID() types.CallerID        { return o.callerID }
func (o *Order) Amount() types.Money             { return o.amount }
func (o *Order) Status() OrderStatus             { return o.status }
func (o *Order) PaymentIntentID() string         { return o.paymentIntentID }
func (o *Order) CreatedAt() time.Time            { return o.createdAt }
func (o *Order) UpdatedAt() time.Time            { return o.updatedAt }
