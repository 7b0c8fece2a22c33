package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

type OrderSuite struct {
	suite.Suite
}

func TestOrderSuite(t *testing.T) {
	suite.Run(t, new(OrderSuite))
}

func (s *OrderSuite) TestNewOrderStartsConfirmed() {
	reservationID := NewReservationID()
	amount := types.NewMoney(decimal.NewFromInt(4200), "USD")

	o := NewOrder(reservationID, "event-1", types.CallerID("caller-1"), amount, "pi_123")

	s.Equal(OrderStatusConfirmed, o.Status())
	s.Equal(reservationID, o.ReservationID())
	s.Equal(amount, o.Amount())
	s.Equal("pi_123", o.PaymentIntentID())
	s.False(o.CreatedAt().IsZero())
}

func (s *OrderSuite) TestReconstructOrderPreservesFields() {
	reservationID := NewReservationID()
	orderID := NewOrderID()
	amount := types.NewMoney(decimal.NewFromInt(999), "KRW")

	now := time.Now()
	o := ReconstructOrder(orderID, reservationID, "event-2", types.CallerID("caller-2"), amount, OrderStatusRefunded, "pi_456", now, now)

	s.Equal(orderID, o.ID())
	s.Equal(OrderStatusRefunded, o.Status())
	s.Equal("event-2", o.EventID())
}
