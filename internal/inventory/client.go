// Package inventory implements the outbound HTTP client to the external
// seat-inventory system (component B of the reservation pipeline).
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/metrics"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/resilience"
)

// Client is the HTTP realization of domain.InventoryClient, with per-call
// deadlines clamped to the remaining request budget, a circuit breaker, and
// retry-with-backoff on the idempotent check/release calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breakers   *resilience.BreakerRegistry
	deadline   time.Duration
	retryCfg   resilience.RetryConfig
}

const breakerName = "inventory"

func NewClient(baseURL string, breakers *resilience.BreakerRegistry, deadline time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		breakers:   breakers,
		deadline:   deadline,
		retryCfg: resilience.RetryConfig{
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			MaxElapsedTime:  deadline,
		},
	}
}

func isRetryableHTTPError(err error) bool {
	return domain.KindOf(err).IsRetryable()
}

func observe(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.RecordInventoryCall(operation, outcome, time.Since(start))
}

type availabilityRequest struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
}

// CheckAvailability asks inventory whether quantity seats are free for eventID.
func (c *Client) CheckAvailability(ctx context.Context, eventID string, quantity int) (bool, int, error) {
	start := time.Now()
	var available bool
	var remaining int
	err := resilience.Call(ctx, c.breakers, breakerName, c.deadline, c.retryCfg, isRetryableHTTPError, func(ctx context.Context) error {
		var resp availabilityResponse
		if err := c.post(ctx, "/v1/availability", availabilityRequest{EventID: eventID, Quantity: quantity}, &resp); err != nil {
			return err
		}
		available = resp.Available
		remaining = resp.Remaining
		return nil
	})
	observe("check_availability", start, err)
	return available, remaining, err
}

type reserveSeatsRequest struct {
	EventID  string   `json:"event_id"`
	Quantity int      `json:"quantity"`
	SeatIDs  []string `json:"seat_ids,omitempty"`
}

type reserveSeatsResponse struct {
	SeatIDs   []string `json:"seat_ids"`
	HoldToken string   `json:"hold_token"`
}

// ReserveSeats places a provisional hold in inventory. Not retried: a partial
// reserve on a retried attempt could double-allocate seats.
func (c *Client) ReserveSeats(ctx context.Context, eventID string, quantity int, seatIDs []string) ([]string, string, error) {
	start := time.Now()
	var resp reserveSeatsResponse
	err := resilience.CallOnce(ctx, c.breakers, breakerName, c.deadline, func(ctx context.Context) error {
		return c.post(ctx, "/v1/reserve", reserveSeatsRequest{EventID: eventID, Quantity: quantity, SeatIDs: seatIDs}, &resp)
	})
	observe("reserve_seats", start, err)
	if err != nil {
		return nil, "", err
	}
	return resp.SeatIDs, resp.HoldToken, nil
}

type holdTokenRequest struct {
	EventID   string `json:"event_id"`
	HoldToken string `json:"hold_token"`
}

// Commit finalizes a hold, marking the assigned seats as sold.
func (c *Client) Commit(ctx context.Context, eventID, holdToken string) error {
	start := time.Now()
	err := resilience.CallOnce(ctx, c.breakers, breakerName, c.deadline, func(ctx context.Context) error {
		return c.post(ctx, "/v1/commit", holdTokenRequest{EventID: eventID, HoldToken: holdToken}, nil)
	})
	observe("commit", start, err)
	return err
}

// Release frees a hold back to the available pool. Tolerates not_found
// because the hold may already have been released by another path.
func (c *Client) Release(ctx context.Context, eventID, holdToken string) error {
	start := time.Now()
	err := resilience.Call(ctx, c.breakers, breakerName, c.deadline, c.retryCfg, isRetryableHTTPError, func(ctx context.Context) error {
		err := c.post(ctx, "/v1/release", holdTokenRequest{EventID: eventID, HoldToken: holdToken}, nil)
		if err != nil && domain.KindOf(err) == domain.KindReservationNotFound {
			return nil
		}
		return err
	})
	observe("release", start, err)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "marshal inventory request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.WrapError(domain.KindInternal, "build inventory request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.WrapError(domain.KindUpstreamTimeout, "inventory call timed out", err)
		}
		return domain.WrapError(domain.KindUpstreamUnavailable, "inventory call failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewError(domain.KindReservationNotFound, "inventory hold not found")
	case resp.StatusCode == http.StatusConflict:
		return domain.NewError(domain.KindInventoryConflict, "inventory reported a conflict")
	case resp.StatusCode >= 500:
		return domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("inventory returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return domain.NewError(domain.KindInvalidRequest, fmt.Sprintf("inventory rejected request: %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.KindInternal, "decode inventory response", err)
	}
	return nil
}

var _ domain.InventoryClient = (*Client)(nil)
