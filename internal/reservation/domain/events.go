package domain

import (
	"encoding/json"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

// ReservationCreatedEvent is emitted when a hold is placed.
type ReservationCreatedEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	CallerID      string    `json:"caller_id"`
	Quantity      int       `json:"quantity"`
	SeatIDs       []string  `json:"seat_ids"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationConfirmedEvent is emitted when a hold is confirmed into an order.
type ReservationConfirmedEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	CallerID      string    `json:"caller_id"`
	OrderID       string    `json:"order_id"`
	Amount        string    `json:"amount"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationCancelledEvent is emitted when a hold is cancelled by its caller.
type ReservationCancelledEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	CallerID      string    `json:"caller_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationExpiredEvent is emitted when a hold is expired by the scheduler.
type ReservationExpiredEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	CallerID      string    `json:"caller_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// newOutboxEntry marshals payload to JSON and wraps it in an OutboxEntry ready
// to be written in the same transaction as the aggregate mutation that caused it.
func newOutboxEntry(eventType string, aggregateID ReservationID, payload any, traceID types.TraceID) (*OutboxEntry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEntry{
		ID:          NewOutboxID(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     body,
		Status:      OutboxStatusPending,
		TraceID:     traceID,
		CreatedAt:   time.Now(),
	}, nil
}

// NewReservationCreatedOutboxEntry builds the outbox row for a successful create.
func NewReservationCreatedOutboxEntry(r *Reservation, traceID types.TraceID) (*OutboxEntry, error) {
	event := ReservationCreatedEvent{
		ReservationID: r.ID().String(),
		EventID:       r.EventID(),
		CallerID:      r.CallerID().String(),
		Quantity:      r.Quantity(),
		SeatIDs:       r.SeatIDs(),
		HoldExpiresAt: r.HoldExpiresAt(),
		OccurredAt:    time.Now(),
	}
	return newOutboxEntry(EventTypeReservationCreated, r.ID(), event, traceID)
}

// NewReservationConfirmedOutboxEntry builds the outbox row for a successful confirm.
func NewReservationConfirmedOutboxEntry(r *Reservation, o *Order, traceID types.TraceID) (*OutboxEntry, error) {
	event := ReservationConfirmedEvent{
		ReservationID: r.ID().String(),
		EventID:       r.EventID(),
		CallerID:      r.CallerID().String(),
		OrderID:       o.ID().String(),
		Amount:        o.Amount().String(),
		OccurredAt:    time.Now(),
	}
	return newOutboxEntry(EventTypeReservationConfirmed, r.ID(), event, traceID)
}

// NewReservationCancelledOutboxEntry builds the outbox row for a successful cancel.
func NewReservationCancelledOutboxEntry(r *Reservation, traceID types.TraceID) (*OutboxEntry, error) {
	event := ReservationCancelledEvent{
		ReservationID: r.ID().String(),
		EventID:       r.EventID(),
		CallerID:      r.CallerID().String(),
		OccurredAt:    time.Now(),
	}
	return newOutboxEntry(EventTypeReservationCancelled, r.ID(), event, traceID)
}

// NewReservationExpiredOutboxEntry builds the outbox row for an expiry.
func NewReservationExpiredOutboxEntry(r *Reservation, traceID types.TraceID) (*OutboxEntry, error) {
	event := ReservationExpiredEvent{
		ReservationID: r.ID().String(),
		EventID:       r.EventID(),
		CallerID:      r.CallerID().String(),
		OccurredAt:    time.Now(),
	}
	return newOutboxEntry(EventTypeReservationExpired, r.ID(), event, traceID)
}
