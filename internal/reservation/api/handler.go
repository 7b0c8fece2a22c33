// Package api implements the HTTP surface of the reservation context.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/traffic-tacos/reservation-core/internal/common/logging"
	"github.com/traffic-tacos/reservation-core/internal/common/reqcontext"
	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/application"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// Handler implements the HTTP handlers for the reservation API.
type Handler struct {
	service *application.ReservationService
}

// NewHandler creates a new Handler.
func NewHandler(service *application.ReservationService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the reservation API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /reservations", h.CreateReservation)
	mux.HandleFunc("GET /reservations/{id}", h.GetReservation)
	mux.HandleFunc("POST /reservations/{id}/confirm", h.ConfirmReservation)
	mux.HandleFunc("POST /reservations/{id}/cancel", h.CancelReservation)
}

// CreateReservationRequest is the JSON request body for placing a hold.
type CreateReservationRequest struct {
	EventID  string   `json:"event_id"`
	Quantity int      `json:"quantity"`
	SeatIDs  []string `json:"seat_ids,omitempty"`
}

// CreateReservation handles POST /reservations.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	callerID := callerIDFromRequest(r)

	resp, err := h.service.CreateReservation(ctx, application.CreateReservationRequest{
		EventID:        req.EventID,
		CallerID:       callerID,
		Quantity:       req.Quantity,
		SeatIDs:        req.SeatIDs,
		IdempotencyKey: idempotencyKey,
		TraceID:        reqcontext.TraceID(ctx),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// GetReservation handles GET /reservations/{id}.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseReservationID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid reservation_id")
		return
	}

	resp, err := h.service.GetReservation(ctx, id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ConfirmReservationRequest is the JSON request body for turning a hold into an order.
type ConfirmReservationRequest struct {
	PaymentIntentID string      `json:"payment_intent_id"`
	Amount          types.Money `json:"amount"`
}

// ConfirmReservation handles POST /reservations/{id}/confirm.
func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseReservationID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid reservation_id")
		return
	}

	var req ConfirmReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	callerID := callerIDFromRequest(r)

	resp, err := h.service.ConfirmReservation(ctx, application.ConfirmReservationRequest{
		ReservationID:   id,
		PaymentIntentID: req.PaymentIntentID,
		Amount:          req.Amount,
		CallerID:        callerID,
		IdempotencyKey:  idempotencyKey,
		TraceID:         reqcontext.TraceID(ctx),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// CancelReservation handles POST /reservations/{id}/cancel.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseReservationID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid reservation_id")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	callerID := callerIDFromRequest(r)

	resp, err := h.service.CancelReservation(ctx, application.CancelReservationRequest{
		ReservationID:  id,
		CallerID:       callerID,
		IdempotencyKey: idempotencyKey,
		TraceID:        reqcontext.TraceID(ctx),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func callerIDFromRequest(r *http.Request) types.CallerID {
	return types.CallerID(r.Header.Get("X-Caller-ID"))
}

// handleDomainError maps domain errors to HTTP responses. Internal error
// details are logged but never exposed to clients.
func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrReservationNotFound), errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, domain.ErrOptimisticLock):
		h.writeError(w, http.StatusConflict, "concurrent modification detected, please retry")
		return
	case errors.Is(err, domain.ErrCorruptData):
		logging.Error("corrupt data detected", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch domain.KindOf(err) {
	case domain.KindIdempotencyRequired, domain.KindInvalidRequest:
		h.writeError(w, http.StatusBadRequest, err.Error())
	case domain.KindReservationNotFound:
		h.writeError(w, http.StatusNotFound, "reservation not found")
	case domain.KindForbidden:
		h.writeError(w, http.StatusForbidden, "forbidden")
	case domain.KindIdempotencyConflict:
		h.writeError(w, http.StatusConflict, "idempotency key reused with a different request")
	case domain.KindReservationExpired:
		h.writeError(w, http.StatusConflict, "hold has expired")
	case domain.KindSeatUnavailable:
		h.writeError(w, http.StatusConflict, "requested seats are not available")
	case domain.KindInventoryConflict:
		h.writeError(w, http.StatusConflict, "inventory rejected the request")
	case domain.KindInvalidState:
		h.writeError(w, http.StatusConflict, "invalid state transition")
	case domain.KindUpstreamTimeout, domain.KindUpstreamUnavailable, domain.KindStoreTransient:
		logging.Error("upstream dependency unavailable", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "dependency unavailable, please retry")
	default:
		logging.Error("unhandled error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
