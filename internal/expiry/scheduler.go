// Package expiry implements the two realizations of the hold-expiry
// contract (component G): an in-process timer registry (this file) and a
// periodic backstop sweeper (sweeper.go) that recovers missed timers.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// Expirer is the narrow surface the scheduler needs from the reservation
// application service: drive a single reservation from HOLD to EXPIRED.
type Expirer interface {
	ExpireReservation(ctx context.Context, id domain.ReservationID, traceID types.TraceID) error
}

// Scheduler is a map-keyed registry of cancellable per-reservation timers,
// one time.AfterFunc per HOLD reservation rather than a single shared
// priority queue, since expiry firing for one reservation is independent of
// every other reservation's deadline.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	expirer Expirer
}

func NewScheduler(expirer Expirer) *Scheduler {
	return &Scheduler{
		timers:  make(map[string]*time.Timer),
		expirer: expirer,
	}
}

// Schedule registers a timer that invokes expire at fireAt. Replaces any
// existing timer for the same reservation.
func (s *Scheduler) Schedule(id domain.ReservationID, fireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[id.String()]; ok {
		existing.Stop()
	}

	delay := time.Until(fireAt)
	s.timers[id.String()] = time.AfterFunc(delay, func() {
		s.fire(id)
	})
}

// Cancel stops the timer for id, if one is registered. Called when a
// reservation is confirmed or cancelled before its hold would have expired.
func (s *Scheduler) Cancel(id domain.ReservationID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id.String()]; ok {
		timer.Stop()
		delete(s.timers, id.String())
	}
}

func (s *Scheduler) fire(id domain.ReservationID) {
	s.mu.Lock()
	delete(s.timers, id.String())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.expirer.ExpireReservation(ctx, id, types.NewTraceID()); err != nil {
		slog.Warn("scheduled expire failed, backstop sweeper will retry", "reservation_id", id.String(), "error", err)
	}
}

var _ domain.ExpiryScheduler = (*Scheduler)(nil)
