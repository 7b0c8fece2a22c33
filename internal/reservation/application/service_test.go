package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/application"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/store/memory"
)

// ReservationServiceSuite tests the ReservationService application layer.
//
// Justification: these tests validate orchestration concerns (idempotency key
// handling, inventory/store coordination) that span multiple domain objects,
// the natural integration point before HTTP-layer tests.
type ReservationServiceSuite struct {
	suite.Suite
	ctx       context.Context
	inventory *fakeInventory
}

func TestReservationServiceSuite(t *testing.T) {
	suite.Run(t, new(ReservationServiceSuite))
}

func (s *ReservationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.inventory = &fakeInventory{available: true, seatIDs: []string{"seat-1", "seat-2"}, holdToken: "hold-token-1"}
}

func (s *ReservationServiceSuite) newService() *application.ReservationService {
	dataStore := memory.NewDataStore()
	return application.NewReservationService(dataStore, s.inventory, fakeScheduler{}, time.Minute, 5*time.Minute)
}

func (s *ReservationServiceSuite) TestCreateReservationWorkflow() {
	s.Run("places a hold within availability", func() {
		service := s.newService()

		resp, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:        "event-1",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       2,
			IdempotencyKey: "idem-1",
		})

		s.Require().NoError(err)
		s.NotEmpty(resp.ReservationID)
		s.Equal(string(domain.ReservationStatusHold), resp.Status)
		s.False(resp.HoldExpiresAt.IsZero())
	})

	s.Run("rejects when inventory reports unavailable", func() {
		s.inventory.available = false
		service := s.newService()

		_, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:        "event-1",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       2,
			IdempotencyKey: "idem-1",
		})

		s.Equal(domain.KindSeatUnavailable, domain.KindOf(err))
	})

	s.Run("rejects quantity outside the allowed range", func() {
		service := s.newService()

		_, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:        "event-1",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       0,
			IdempotencyKey: "idem-1",
		})

		s.Equal(domain.KindInvalidRequest, domain.KindOf(err))
	})

	s.Run("requires an idempotency key", func() {
		service := s.newService()

		_, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:  "event-1",
			CallerID: types.CallerID("caller-1"),
			Quantity: 1,
		})

		s.Equal(domain.KindIdempotencyRequired, domain.KindOf(err))
	})
}

func (s *ReservationServiceSuite) TestCreateReservationIdempotency() {
	s.Run("returns the same reservation for a replayed key", func() {
		service := s.newService()
		req := application.CreateReservationRequest{
			EventID:        "event-1",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       1,
			IdempotencyKey: "idem-same",
		}

		resp1, err := service.CreateReservation(s.ctx, req)
		s.Require().NoError(err)

		resp2, err := service.CreateReservation(s.ctx, req)
		s.Require().NoError(err)

		s.Equal(resp1.ReservationID, resp2.ReservationID)
	})

	s.Run("rejects a reused key with a different request body", func() {
		service := s.newService()
		_, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:        "event-1",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       1,
			IdempotencyKey: "idem-conflict",
		})
		s.Require().NoError(err)

		_, err = service.CreateReservation(s.ctx, application.CreateReservationRequest{
			EventID:        "event-2",
			CallerID:       types.CallerID("caller-1"),
			Quantity:       1,
			IdempotencyKey: "idem-conflict",
		})

		s.Equal(domain.KindIdempotencyConflict, domain.KindOf(err))
	})
}

func (s *ReservationServiceSuite) createHold(service *application.ReservationService, idempotencyKey string) string {
	resp, err := service.CreateReservation(s.ctx, application.CreateReservationRequest{
		EventID:        "event-1",
		CallerID:       types.CallerID("caller-1"),
		Quantity:       2,
		IdempotencyKey: idempotencyKey,
	})
	s.Require().NoError(err)
	return resp.ReservationID
}

func (s *ReservationServiceSuite) TestConfirmReservationWorkflow() {
	s.Run("confirms a hold and creates an order", func() {
		service := s.newService()
		reservationID := s.createHold(service, "idem-create")
		id, err := domain.ParseReservationID(reservationID)
		s.Require().NoError(err)

		resp, err := service.ConfirmReservation(s.ctx, application.ConfirmReservationRequest{
			ReservationID:   id,
			PaymentIntentID: "pi_123",
			Amount:          types.NewMoney(decimal.NewFromInt(5000), "USD"),
			CallerID:        types.CallerID("caller-1"),
			IdempotencyKey:  "idem-confirm",
		})

		s.Require().NoError(err)
		s.NotEmpty(resp.OrderID)
		s.Equal(string(domain.OrderStatusConfirmed), resp.Status)
	})

	s.Run("rejects confirming a cancelled reservation", func() {
		service := s.newService()
		reservationID := s.createHold(service, "idem-create-2")
		id, err := domain.ParseReservationID(reservationID)
		s.Require().NoError(err)

		_, err = service.CancelReservation(s.ctx, application.CancelReservationRequest{
			ReservationID:  id,
			CallerID:       types.CallerID("caller-1"),
			IdempotencyKey: "idem-cancel",
		})
		s.Require().NoError(err)

		_, err = service.ConfirmReservation(s.ctx, application.ConfirmReservationRequest{
			ReservationID:   id,
			PaymentIntentID: "pi_123",
			Amount:          types.NewMoney(decimal.NewFromInt(5000), "USD"),
			CallerID:        types.CallerID("caller-1"),
			IdempotencyKey:  "idem-confirm-2",
		})

		s.Equal(domain.KindReservationExpired, domain.KindOf(err))
	})
}

func (s *ReservationServiceSuite) TestCancelReservationIsIdempotentOnReplay() {
	service := s.newService()
	reservationID := s.createHold(service, "idem-create-3")
	id, err := domain.ParseReservationID(reservationID)
	s.Require().NoError(err)

	_, err = service.CancelReservation(s.ctx, application.CancelReservationRequest{
		ReservationID:  id,
		CallerID:       types.CallerID("caller-1"),
		IdempotencyKey: "idem-cancel-a",
	})
	s.Require().NoError(err)

	resp, err := service.CancelReservation(s.ctx, application.CancelReservationRequest{
		ReservationID:  id,
		CallerID:       types.CallerID("caller-1"),
		IdempotencyKey: "idem-cancel-b",
	})

	s.Require().NoError(err)
	s.Equal(string(domain.ReservationStatusCancelled), resp.Status)
}

func (s *ReservationServiceSuite) TestExpireReservationTransitionsHoldToExpired() {
	service := s.newService()
	reservationID := s.createHold(service, "idem-create-4")
	id, err := domain.ParseReservationID(reservationID)
	s.Require().NoError(err)

	err = service.ExpireReservation(s.ctx, id, types.NewTraceID())
	s.Require().NoError(err)

	got, err := service.GetReservation(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(string(domain.ReservationStatusExpired), got.Status)
}

func (s *ReservationServiceSuite) TestGetReservationNotFound() {
	service := s.newService()

	_, err := service.GetReservation(s.ctx, domain.NewReservationID())

	s.ErrorIs(err, domain.ErrReservationNotFound)
}

type fakeInventory struct {
	available bool
	seatIDs   []string
	holdToken string
}

func (f *fakeInventory) CheckAvailability(ctx context.Context, eventID string, quantity int) (bool, int, error) {
	if !f.available {
		return false, 0, nil
	}
	remaining := quantity
	if len(f.seatIDs) > remaining {
		remaining = len(f.seatIDs)
	}
	return true, remaining, nil
}

func (f *fakeInventory) ReserveSeats(ctx context.Context, eventID string, quantity int, seatIDs []string) ([]string, string, error) {
	if len(seatIDs) > 0 {
		return seatIDs, f.holdToken, nil
	}
	return f.seatIDs, f.holdToken, nil
}

func (f *fakeInventory) Commit(ctx context.Context, eventID, holdToken string) error { return nil }
func (f *fakeInventory) Release(ctx context.Context, eventID, holdToken string) error { return nil }

type fakeScheduler struct{}

func (fakeScheduler) Schedule(id domain.ReservationID, fireAt time.Time) {}
func (fakeScheduler) Cancel(id domain.ReservationID)                     {}
