package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/traffic-tacos/reservation-core/internal/reservation/api"
	"github.com/traffic-tacos/reservation-core/internal/reservation/application"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/store/memory"
)

// fakeInventory is a scriptable stand-in for the external inventory system.
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

// fakeScheduler ignores scheduling entirely; the HTTP-level suite exercises
// synchronous behavior only, not hold expiry timing.
type fakeScheduler struct{}

func (fakeScheduler) Schedule(id domain.ReservationID, fireAt time.Time) {}
func (fakeScheduler) Cancel(id domain.ReservationID)                     {}

// HandlerSuite tests HTTP handler behavior including error mapping.
type HandlerSuite struct {
	suite.Suite
	mux       *http.ServeMux
	service   *application.ReservationService
	inventory *fakeInventory
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	dataStore := memory.NewDataStore()
	s.inventory = &fakeInventory{available: true, seatIDs: []string{"seat-1"}, holdToken: "hold-token-1"}
	s.service = application.NewReservationService(dataStore, s.inventory, fakeScheduler{}, time.Minute, 5*time.Minute)
	handler := api.NewHandler(s.service)

	s.mux = http.NewServeMux()
	handler.RegisterRoutes(s.mux)
}

func (s *HandlerSuite) doRequest(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createReservation(idempotencyKey string) map[string]any {
	body := map[string]any{
		"event_id": "event-1",
		"quantity": 1,
	}
	rec := s.doRequest(http.MethodPost, "/reservations", body, map[string]string{"Idempotency-Key": idempotencyKey})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestCreateReservation() {
	s.Run("returns 201 with reservation_id", func() {
		resp := s.createReservation("idem-create-1")
		s.NotEmpty(resp["reservation_id"])
		s.Equal("HOLD", resp["status"])
	})

	s.Run("missing idempotency key returns 400", func() {
		body := map[string]any{"event_id": "event-1", "quantity": 1}
		rec := s.doRequest(http.MethodPost, "/reservations", body, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("quantity out of range returns 400", func() {
		body := map[string]any{"event_id": "event-1", "quantity": 99}
		rec := s.doRequest(http.MethodPost, "/reservations", body, map[string]string{"Idempotency-Key": "idem-bad-qty"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("seats unavailable returns 409", func() {
		s.inventory.available = false
		defer func() { s.inventory.available = true }()
		body := map[string]any{"event_id": "event-1", "quantity": 1}
		rec := s.doRequest(http.MethodPost, "/reservations", body, map[string]string{"Idempotency-Key": "idem-unavailable"})
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("replayed idempotency key returns cached response", func() {
		first := s.createReservation("idem-replay")

		body := map[string]any{"event_id": "event-1", "quantity": 1}
		rec := s.doRequest(http.MethodPost, "/reservations", body, map[string]string{"Idempotency-Key": "idem-replay"})
		s.Equal(http.StatusCreated, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(first["reservation_id"], resp["reservation_id"])
	})

	s.Run("invalid JSON returns 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewBufferString("{invalid"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestGetReservation() {
	s.Run("returns 200 with reservation details", func() {
		created := s.createReservation("idem-get")
		id := created["reservation_id"].(string)

		rec := s.doRequest(http.MethodGet, "/reservations/"+id, nil, nil)
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(id, resp["reservation_id"])
		s.Equal("HOLD", resp["status"])
	})

	s.Run("not found returns 404", func() {
		rec := s.doRequest(http.MethodGet, "/reservations/00000000-0000-0000-0000-000000000001", nil, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("invalid id format returns 400", func() {
		rec := s.doRequest(http.MethodGet, "/reservations/not-a-uuid", nil, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestConfirmReservation() {
	s.Run("returns 200 with order_id", func() {
		created := s.createReservation("idem-confirm")
		id := created["reservation_id"].(string)

		body := map[string]any{
			"payment_intent_id": "pi_123",
			"amount":            map[string]any{"value": "42.00", "currency": "USD"},
		}
		rec := s.doRequest(http.MethodPost, "/reservations/"+id+"/confirm", body, map[string]string{"Idempotency-Key": "idem-confirm-op"})
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.NotEmpty(resp["order_id"])
		s.Equal("CONFIRMED", resp["status"])
	})

	s.Run("confirming an already cancelled reservation returns 409", func() {
		created := s.createReservation("idem-confirm-cancelled")
		id := created["reservation_id"].(string)

		cancelRec := s.doRequest(http.MethodPost, "/reservations/"+id+"/cancel", nil, map[string]string{"Idempotency-Key": "idem-cancel-for-confirm"})
		s.Require().Equal(http.StatusOK, cancelRec.Code)

		body := map[string]any{
			"payment_intent_id": "pi_456",
			"amount":            map[string]any{"value": "10.00", "currency": "USD"},
		}
		rec := s.doRequest(http.MethodPost, "/reservations/"+id+"/confirm", body, map[string]string{"Idempotency-Key": "idem-confirm-after-cancel"})
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *HandlerSuite) TestCancelReservation() {
	s.Run("returns 200 with cancelled status", func() {
		created := s.createReservation("idem-cancel")
		id := created["reservation_id"].(string)

		rec := s.doRequest(http.MethodPost, "/reservations/"+id+"/cancel", nil, map[string]string{"Idempotency-Key": "idem-cancel-op"})
		s.Equal(http.StatusOK, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("CANCELLED", resp["status"])
	})

	s.Run("cancelling twice is idempotent", func() {
		created := s.createReservation("idem-cancel-twice")
		id := created["reservation_id"].(string)

		rec1 := s.doRequest(http.MethodPost, "/reservations/"+id+"/cancel", nil, map[string]string{"Idempotency-Key": "idem-cancel-twice-1"})
		s.Require().Equal(http.StatusOK, rec1.Code)

		rec2 := s.doRequest(http.MethodPost, "/reservations/"+id+"/cancel", nil, map[string]string{"Idempotency-Key": "idem-cancel-twice-2"})
		s.Equal(http.StatusOK, rec2.Code)
	})
}
