package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEmptyReservationID is returned when parsing an empty reservation ID.
var ErrEmptyReservationID = errors.New("reservation_id cannot be empty")

// ErrInvalidReservationID is returned when parsing an invalid UUID format.
var ErrInvalidReservationID = errors.New("reservation_id: invalid uuid format")

// ReservationID uniquely identifies a reservation. It is a struct wrapper to
// prevent accidental type confusion with other identifiers at compile time.
type ReservationID struct {
	value string
}

// ParseReservationID creates a ReservationID from a string, validating UUID format.
func ParseReservationID(s string) (ReservationID, error) {
	if s == "" {
		return ReservationID{}, ErrEmptyReservationID
	}
	if _, err := uuid.Parse(s); err != nil {
		return ReservationID{}, fmt.Errorf("%w: %s", ErrInvalidReservationID, s)
	}
	return ReservationID{value: s}, nil
}

// NewReservationID generates a new unique ReservationID.
func NewReservationID() ReservationID {
	return ReservationID{value: uuid.NewString()}
}

func (r ReservationID) String() string  { return r.value }
func (r ReservationID) IsEmpty() bool   { return r.value == "" }

// ErrEmptyOrderID is returned when parsing an empty order ID.
var ErrEmptyOrderID = errors.New("order_id cannot be empty")

// ErrInvalidOrderID is returned when parsing an invalid UUID format.
var ErrInvalidOrderID = errors.New("order_id: invalid uuid format")

// OrderID uniquely identifies an order created at confirmation time.
type OrderID struct {
	value string
}

// ParseOrderID creates an OrderID from a string, validating UUID format.
func ParseOrderID(s string) (OrderID, error) {
	if s == "" {
		return OrderID{}, ErrEmptyOrderID
	}
	if _, err := uuid.Parse(s); err != nil {
		return OrderID{}, fmt.Errorf("%w: %s", ErrInvalidOrderID, s)
	}
	return OrderID{value: s}, nil
}

// NewOrderID generates a new unique OrderID.
func NewOrderID() OrderID {
	return OrderID{value: uuid.NewString()}
}

func (o OrderID) String() string { return o.value }
func (o OrderID) IsEmpty() bool  { return o.value == "" }

// OutboxID uniquely identifies an outbox entry.
type OutboxID struct {
	value string
}

// NewOutboxID generates a new unique OutboxID.
func NewOutboxID() OutboxID {
	return OutboxID{value: uuid.NewString()}
}

// ParseOutboxID creates an OutboxID from a string, validating UUID format.
func ParseOutboxID(s string) (OutboxID, error) {
	if s == "" {
		return OutboxID{}, errors.New("outbox_id cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return OutboxID{}, fmt.Errorf("outbox_id: invalid uuid format: %s", s)
	}
	return OutboxID{value: s}, nil
}

func (o OutboxID) String() string { return o.value }
func (o OutboxID) IsEmpty() bool  { return o.value == "" }
