package domain

import (
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

// Reservation represents a time-bounded seat hold (aggregate root).
// Invariants:
//   - Status transitions are monotonic: HOLD -> {CONFIRMED, CANCELLED, EXPIRED}; terminal statuses never change.
//   - holdExpiresAt is non-zero iff status == HOLD.
//   - len(seatIDs) == quantity once seats have been assigned by inventory.
//   - idempotencyKey is immutable after first write.
type Reservation struct {
	id             ReservationID
	eventID        string
	callerID       types.CallerID
	quantity       int
	seatIDs        []string
	status         ReservationStatus
	holdExpiresAt  time.Time
	holdToken      string
	idempotencyKey string
	version        int
	createdAt      time.Time
	updatedAt      time.Time
}

// NewReservation creates a new reservation in the HOLD state.
func NewReservation(
	eventID string,
	callerID types.CallerID,
	quantity int,
	seatIDs []string,
	holdToken string,
	idempotencyKey string,
	holdDuration time.Duration,
) *Reservation {
	now := time.Now()
	return &Reservation{
		id:             NewReservationID(),
		eventID:        eventID,
		callerID:       callerID,
		quantity:       quantity,
		seatIDs:        seatIDs,
		status:         ReservationStatusHold,
		holdExpiresAt:  now.Add(holdDuration),
		holdToken:      holdToken,
		idempotencyKey: idempotencyKey,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}
}

// ReconstructReservation rebuilds a Reservation from persistence.
// This bypasses validation - only use for loading from storage.
func ReconstructReservation(
	id ReservationID,
	eventID string,
	callerID types.CallerID,
	quantity int,
	seatIDs []string,
	status ReservationStatus,
	holdExpiresAt time.Time,
	holdToken string,
	idempotencyKey string,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
) *Reservation {
	return &Reservation{
		id:             id,
		eventID:        eventID,
		callerID:       callerID,
		quantity:       quantity,
		seatIDs:        seatIDs,
		status:         status,
		holdExpiresAt:  holdExpiresAt,
		holdToken:      holdToken,
		idempotencyKey: idempotencyKey,
		version:        version,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// IsHoldExpired reports whether the reservation is still HOLD and its hold
// deadline has passed (used by confirm to detect a race against the
// sweeper); it is false once the reservation is in any terminal status.
func (r *Reservation) IsHoldExpired(now time.Time) bool {
	return r.status == ReservationStatusHold && !now.Before(r.holdExpiresAt)
}

// Confirm transitions HOLD -> CONFIRMED.
func (r *Reservation) Confirm() error {
	switch r.status {
	case ReservationStatusConfirmed:
		return ErrAlreadyConfirmed
	case ReservationStatusHold:
		r.status = ReservationStatusConfirmed
		r.holdExpiresAt = time.Time{}
		r.version++
		r.updatedAt = time.Now()
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

// Cancel transitions HOLD -> CANCELLED. Confirmation is terminal; cancelling a
// confirmed reservation is not a core responsibility (see the design notes).
func (r *Reservation) Cancel() error {
	switch r.status {
	case ReservationStatusCancelled:
		return ErrAlreadyCancelled
	case ReservationStatusHold:
		r.status = ReservationStatusCancelled
		r.holdExpiresAt = time.Time{}
		r.version++
		r.updatedAt = time.Now()
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

// Expire transitions HOLD -> EXPIRED. No-op (not an error) when the
// reservation is already terminal, since expiry may race with confirm/cancel
// and duplicate fires from the scheduler must be harmless.
func (r *Reservation) Expire() error {
	if r.status != ReservationStatusHold {
		return nil
	}
	r.status = ReservationStatusExpired
	r.holdExpiresAt = time.Time{}
	r.version++
	r.updatedAt = time.Now()
	return nil
}

// SetSeatIDs replaces the seat list, used when inventory assigns seats on the
// caller's behalf (caller submitted an empty seat_ids list).
func (r *Reservation) SetSeatIDs(seatIDs []string) {
	r.seatIDs = seatIDs
}

// Getters

func (r *Reservation) ID() ReservationID           { return r.id }
func (r *Reservation) EventID() string             { return r.eventID }
func (r *Reservation) CallerID() types.CallerID     { return r.callerID }
func (r *Reservation) Quantity() int               { return r.quantity }
func (r *Reservation) SeatIDs() []string            { return r.seatIDs }
func (r *Reservation) Status() ReservationStatus    { return r.status }
func (r *Reservation) HoldExpiresAt() time.Time     { return r.holdExpiresAt }
func (r *Reservation) HoldToken() string            { return r.holdToken }
func (r *Reservation) IdempotencyKey() string       { return r.idempotencyKey }
func (r *Reservation) Version() int                 { return r.version }
func (r *Reservation) CreatedAt() time.Time         { return r.createdAt }
func (r *Reservation) UpdatedAt() time.Time         { return r.updatedAt }
