// Package resilience holds the dependency-protection primitives: a circuit
// breaker registry, a retry-with-backoff wrapper, and the deadline helper
// that keeps a per-call timeout inside the caller's remaining request budget.
// The inventory client is the one caller of the breaker and retry wrappers;
// the event sink and the store are not wrapped by a breaker.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/traffic-tacos/reservation-core/internal/common/metrics"
)

// BreakerConfig configures every breaker the registry creates; all named
// dependencies share this one configuration. Only "inventory" is registered.
type BreakerConfig struct {
	// FailureRatioThreshold trips the breaker once this fraction of requests
	// fail within Window, given at least Window requests have been observed.
	FailureRatioThreshold float64
	Window                uint32
	OpenDuration          time.Duration
	HalfOpenMaxRequests    uint32
}

// BreakerRegistry hands out one circuit breaker per named dependency,
// creating it lazily on first use.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (r *BreakerRegistry) get(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: r.cfg.HalfOpenMaxRequests,
		Interval:    time.Duration(r.cfg.Window) * time.Second,
		Timeout:     r.cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= r.cfg.Window &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= r.cfg.FailureRatioThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "dependency", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through the named dependency's breaker, tripping it when
// fn's failure ratio crosses the configured threshold.
func (r *BreakerRegistry) Execute(name string, fn func() (any, error)) (any, error) {
	return r.get(name).Execute(fn)
}
