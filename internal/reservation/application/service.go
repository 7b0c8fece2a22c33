package application

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/logging"
	"github.com/traffic-tacos/reservation-core/internal/common/metrics"
	"github.com/traffic-tacos/reservation-core/internal/common/reqcontext"
	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// ReservationService implements the application layer for the reservation context.
//
// Key design decisions:
//   - All state-changing operations use the Atomic callback pattern.
//   - Domain events are written to the outbox within the same transaction.
//   - Idempotency is enforced at the service layer, outside the transaction
//     on the fast replay path and inside it to close the store-then-return race.
//   - Inventory calls happen outside the database transaction; a failed
//     transactional_write after a successful reserve is compensated with a
//     best-effort release rather than held open across a retry.
type ReservationService struct {
	dataStore  domain.AtomicExecutor
	repos      domain.Repositories
	inventory  domain.InventoryClient
	scheduler  domain.ExpiryScheduler
	holdDuration time.Duration
	idempotencyTTL time.Duration
}

// NewReservationService creates a new ReservationService. dataStore must
// implement both AtomicExecutor and Repositories so reads outside a
// transaction (Get, the idempotency fast path) share the same connection pool.
func NewReservationService(
	dataStore interface {
		domain.AtomicExecutor
		domain.Repositories
	},
	inventory domain.InventoryClient,
	scheduler domain.ExpiryScheduler,
	holdDuration time.Duration,
	idempotencyTTL time.Duration,
) *ReservationService {
	return &ReservationService{
		dataStore:      dataStore,
		repos:          dataStore,
		inventory:      inventory,
		scheduler:      scheduler,
		holdDuration:   holdDuration,
		idempotencyTTL: idempotencyTTL,
	}
}

// CreateReservationRequest is the inbound payload for placing a hold.
type CreateReservationRequest struct {
	EventID        string
	CallerID       types.CallerID
	Quantity       int
	SeatIDs        []string
	IdempotencyKey string
	TraceID        types.TraceID
}

// CreateReservationResponse is returned from a successful (or replayed) create.
type CreateReservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	Status        string    `json:"status"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

// CreateReservation places a time-bounded hold on seats for an event.
//
// This operation:
//   - Requires an idempotency key; returns the cached response on replay.
//   - Checks availability and reserves seats against the inventory client
//     outside the transaction, since inventory is a separate system.
//   - Writes the reservation and its outbox row atomically.
//   - Schedules the in-process expiry timer once the write has committed.
//   - Compensates with a best-effort inventory release if the write fails
//     after a successful reserve.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*CreateReservationResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, domain.NewError(domain.KindIdempotencyRequired, "idempotency key is required")
	}
	if req.EventID == "" || req.Quantity < 1 || req.Quantity > 10 {
		return nil, domain.NewError(domain.KindInvalidRequest, "event_id must be set and quantity must be between 1 and 10")
	}
	if len(req.SeatIDs) > 0 && len(req.SeatIDs) != req.Quantity {
		return nil, domain.WrapError(domain.KindInvalidRequest, "seat_ids length does not match quantity", domain.ErrSeatCountMismatch)
	}

	if cached, err := checkIdempotency[CreateReservationResponse](ctx, s.repos.IdempotencyStore(), req.IdempotencyKey, req); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	available, remaining, err := s.inventory.CheckAvailability(ctx, req.EventID, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !available || remaining == 0 {
		businessErr := domain.NewError(domain.KindSeatUnavailable, "requested seats are not available")
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	assignedSeatIDs, holdToken, err := s.inventory.ReserveSeats(ctx, req.EventID, req.Quantity, req.SeatIDs)
	if err != nil {
		if domain.KindOf(err).IsRetryable() {
			return nil, err
		}
		businessErr := domain.WrapError(domain.KindInventoryConflict, "inventory could not reserve the requested seats", err)
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	var result *CreateReservationResponse
	var reservation *domain.Reservation

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		now := time.Now()

		reservation = domain.NewReservation(req.EventID, req.CallerID, req.Quantity, assignedSeatIDs, holdToken, req.IdempotencyKey, s.holdDuration)

		if err := repos.Reservations().Save(ctx, reservation); err != nil {
			return err
		}

		outboxEntry, err := domain.NewReservationCreatedOutboxEntry(reservation, req.TraceID)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, outboxEntry); err != nil {
			return err
		}

		result = &CreateReservationResponse{
			ReservationID: reservation.ID().String(),
			Status:        string(reservation.Status()),
			HoldExpiresAt: reservation.HoldExpiresAt(),
		}

		if err := storeIdempotency(ctx, repos.IdempotencyStore(), req.IdempotencyKey, req, reservation.ID().String(), http.StatusCreated, result, now, s.idempotencyTTL); err != nil {
			return err
		}

		metrics.RecordReservationCreated(string(reservation.Status()))

		logging.InfoContext(ctx, "reservation created",
			"reservation_id", reservation.ID().String(),
			"event_id", req.EventID,
			"quantity", req.Quantity,
		)

		return nil
	})

	if conflict, conflictErr := handleIdempotencyConflict[CreateReservationResponse](err); conflictErr != nil {
		// The write failed for a reason other than a lost idempotency race.
		// The seats were reserved in inventory but never committed to storage;
		// release them so they are not held indefinitely.
		s.releaseBestEffort(ctx, req.EventID, holdToken)
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, conflictErr)
		return nil, conflictErr
	} else if conflict != nil {
		return conflict, nil
	}

	s.scheduler.Schedule(reservation.ID(), reservation.HoldExpiresAt())

	return result, nil
}

// releaseBestEffort releases an inventory hold without surfacing its own
// error; a release failure here must never mask the original error.
func (s *ReservationService) releaseBestEffort(ctx context.Context, eventID, holdToken string) {
	if err := s.inventory.Release(ctx, eventID, holdToken); err != nil {
		logging.WarnContext(ctx, "compensating release failed", "event_id", eventID, "error", err)
	}
}

// cacheBusinessError caches a determinate business error against
// idempotencyKey so a replayed request returns the same conflict instead of
// re-invoking inventory. Not-found, transient infrastructure errors, and
// internal errors are deliberately left uncached (isCacheableBusinessError);
// a replay of those should hit the real dependency again, not be frozen.
// Best-effort: a failure here is logged, never surfaced, since the caller
// already has the original error to return.
func (s *ReservationService) cacheBusinessError(ctx context.Context, idempotencyKey string, req any, err error) {
	if idempotencyKey == "" {
		return
	}
	var domErr *domain.Error
	if !errors.As(err, &domErr) || !isCacheableBusinessError(domErr.Kind) {
		return
	}
	if cacheErr := storeIdempotencyError(ctx, s.repos.IdempotencyStore(), idempotencyKey, req, time.Now(), s.idempotencyTTL, domErr); cacheErr != nil {
		logging.WarnContext(ctx, "failed to cache business error for idempotency replay", "idempotency_key", idempotencyKey, "error", cacheErr)
	}
}

// ConfirmReservationRequest is the inbound payload for turning a hold into an order.
type ConfirmReservationRequest struct {
	ReservationID   domain.ReservationID
	PaymentIntentID string
	Amount          types.Money
	CallerID        types.CallerID
	IdempotencyKey  string
	TraceID         types.TraceID
}

// ConfirmReservationResponse is returned from a successful (or replayed) confirm.
type ConfirmReservationResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ConfirmReservation turns a HOLD into a CONFIRMED reservation and an order.
func (s *ReservationService) ConfirmReservation(ctx context.Context, req ConfirmReservationRequest) (*ConfirmReservationResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, domain.NewError(domain.KindIdempotencyRequired, "idempotency key is required")
	}

	if cached, err := checkIdempotency[ConfirmReservationResponse](ctx, s.repos.IdempotencyStore(), req.IdempotencyKey, req); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	reservation, err := s.repos.Reservations().FindByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	switch reservation.Status() {
	case domain.ReservationStatusConfirmed:
		if order, err := s.repos.Orders().FindByReservationID(ctx, req.ReservationID); err == nil {
			return &ConfirmReservationResponse{OrderID: order.ID().String(), Status: string(order.Status())}, nil
		}
	case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
		businessErr := domain.NewError(domain.KindReservationExpired, "reservation is no longer active")
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	if reservation.IsHoldExpired(time.Now()) {
		s.expireBestEffort(ctx, reservation)
		businessErr := domain.NewError(domain.KindReservationExpired, "hold expired before confirmation")
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	if err := s.inventory.Commit(ctx, reservation.EventID(), reservation.HoldToken()); err != nil {
		if domain.KindOf(err).IsRetryable() {
			return nil, err
		}
		s.expireBestEffort(ctx, reservation)
		businessErr := domain.WrapError(domain.KindInventoryConflict, "inventory could not commit the hold", err)
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	var result *ConfirmReservationResponse

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		now := time.Now()

		current, err := repos.Reservations().FindByID(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		if err := current.Confirm(); err != nil {
			// A concurrent expiry (scheduler fire or sweeper) may have won the
			// race since the pre-transaction read above; re-read-and-reclassify
			// rather than surfacing the aggregate's plain sentinel, which would
			// otherwise default to a 500 at the transport layer.
			if errors.Is(err, domain.ErrInvalidStateTransition) && current.Status() != domain.ReservationStatusConfirmed {
				return domain.NewError(domain.KindReservationExpired, "reservation is no longer active")
			}
			return err
		}

		order := domain.NewOrder(current.ID(), current.EventID(), req.CallerID, req.Amount, req.PaymentIntentID)

		if err := repos.Reservations().Save(ctx, current); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}

		outboxEntry, err := domain.NewReservationConfirmedOutboxEntry(current, order, req.TraceID)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, outboxEntry); err != nil {
			return err
		}

		result = &ConfirmReservationResponse{OrderID: order.ID().String(), Status: string(order.Status())}

		if err := storeIdempotency(ctx, repos.IdempotencyStore(), req.IdempotencyKey, req, order.ID().String(), http.StatusOK, result, now, s.idempotencyTTL); err != nil {
			return err
		}

		logging.InfoContext(ctx, "reservation confirmed",
			"reservation_id", current.ID().String(),
			"order_id", order.ID().String(),
		)

		return nil
	})

	if conflict, conflictErr := handleIdempotencyConflict[ConfirmReservationResponse](err); conflictErr != nil {
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, conflictErr)
		return nil, conflictErr
	} else if conflict != nil {
		return conflict, nil
	}

	return result, nil
}

// CancelReservationRequest is the inbound payload for releasing a hold.
type CancelReservationRequest struct {
	ReservationID  domain.ReservationID
	CallerID       types.CallerID
	IdempotencyKey string
	TraceID        types.TraceID
}

// CancelReservationResponse is returned from a successful (or replayed) cancel.
type CancelReservationResponse struct {
	Status string `json:"status"`
}

// CancelReservation releases an active hold. Post-confirmation cancellation is
// out of scope; a CONFIRMED reservation returns KindInvalidState.
func (s *ReservationService) CancelReservation(ctx context.Context, req CancelReservationRequest) (*CancelReservationResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, domain.NewError(domain.KindIdempotencyRequired, "idempotency key is required")
	}

	if cached, err := checkIdempotency[CancelReservationResponse](ctx, s.repos.IdempotencyStore(), req.IdempotencyKey, req); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	reservation, err := s.repos.Reservations().FindByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	switch reservation.Status() {
	case domain.ReservationStatusCancelled:
		return &CancelReservationResponse{Status: string(domain.ReservationStatusCancelled)}, nil
	case domain.ReservationStatusExpired:
		businessErr := domain.NewError(domain.KindReservationExpired, "hold already expired")
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	case domain.ReservationStatusConfirmed:
		businessErr := domain.NewError(domain.KindInvalidState, "a confirmed reservation cannot be cancelled")
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, businessErr)
		return nil, businessErr
	}

	s.releaseBestEffort(ctx, reservation.EventID(), reservation.HoldToken())

	var result *CancelReservationResponse

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		now := time.Now()

		current, err := repos.Reservations().FindByID(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		if err := current.Cancel(); err != nil {
			return err
		}

		if err := repos.Reservations().Save(ctx, current); err != nil {
			return err
		}

		outboxEntry, err := domain.NewReservationCancelledOutboxEntry(current, req.TraceID)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, outboxEntry); err != nil {
			return err
		}

		result = &CancelReservationResponse{Status: string(current.Status())}

		if err := storeIdempotency(ctx, repos.IdempotencyStore(), req.IdempotencyKey, req, current.ID().String(), http.StatusOK, result, now, s.idempotencyTTL); err != nil {
			return err
		}

		s.scheduler.Cancel(current.ID())

		logging.InfoContext(ctx, "reservation cancelled", "reservation_id", current.ID().String())

		return nil
	})

	if conflict, conflictErr := handleIdempotencyConflict[CancelReservationResponse](err); conflictErr != nil {
		s.cacheBusinessError(ctx, req.IdempotencyKey, req, conflictErr)
		return nil, conflictErr
	} else if conflict != nil {
		return conflict, nil
	}

	return result, nil
}

// GetReservationResponse is the read-only projection returned by GetReservation.
type GetReservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	Status        string    `json:"status"`
	Quantity      int       `json:"quantity"`
	SeatIDs       []string  `json:"seat_ids"`
	HoldExpiresAt time.Time `json:"hold_expires_at,omitzero"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetReservation retrieves a reservation by ID. Read-only, no idempotency key required.
func (s *ReservationService) GetReservation(ctx context.Context, id domain.ReservationID) (*GetReservationResponse, error) {
	reservation, err := s.repos.Reservations().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &GetReservationResponse{
		ReservationID: reservation.ID().String(),
		EventID:       reservation.EventID(),
		Status:        string(reservation.Status()),
		Quantity:      reservation.Quantity(),
		SeatIDs:       reservation.SeatIDs(),
		HoldExpiresAt: reservation.HoldExpiresAt(),
		CreatedAt:     reservation.CreatedAt(),
		UpdatedAt:     reservation.UpdatedAt(),
	}, nil
}

// ExpireReservation transitions a HOLD to EXPIRED. Invoked by the in-process
// timer (component G primary) or the backstop sweeper; both paths share this
// method and both tolerate calling it on an already-terminal reservation.
func (s *ReservationService) ExpireReservation(ctx context.Context, id domain.ReservationID, traceID types.TraceID) error {
	reservation, err := s.repos.Reservations().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status() != domain.ReservationStatusHold {
		return nil
	}

	s.releaseBestEffort(ctx, reservation.EventID(), reservation.HoldToken())

	return s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		current, err := repos.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Expire(); err != nil {
			return err
		}
		if current.Status() != domain.ReservationStatusExpired {
			// Another path (confirm/cancel) won the race; nothing to persist.
			return nil
		}

		if err := repos.Reservations().Save(ctx, current); err != nil {
			return err
		}

		outboxEntry, err := domain.NewReservationExpiredOutboxEntry(current, traceID)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, outboxEntry); err != nil {
			return err
		}

		metrics.RecordReservationExpired("service")

		logging.InfoContext(ctx, "reservation expired", "reservation_id", current.ID().String())

		return nil
	})
}

// expireBestEffort drives a reservation to EXPIRED without surfacing its own
// error; this is an opportunistic side-effect of a caller observing an
// already-passed deadline, not the primary expiry path.
func (s *ReservationService) expireBestEffort(ctx context.Context, r *domain.Reservation) {
	if err := s.ExpireReservation(ctx, r.ID(), reqcontext.TraceID(ctx)); err != nil {
		logging.WarnContext(ctx, "opportunistic expire failed", "reservation_id", r.ID().String(), "error", err)
	}
}
