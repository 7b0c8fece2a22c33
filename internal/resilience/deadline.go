package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/traffic-tacos/reservation-core/internal/common/reqcontext"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// classifyBreakerError reports a call the breaker rejected (open, or
// half-open with its probe quota used) as KindUpstreamUnavailable.
func classifyBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.WrapError(domain.KindUpstreamUnavailable, "circuit breaker rejected the call", err)
	}
	return err
}

// Call runs fn with a per-call deadline clamped to the remaining request
// budget (reqcontext.WithDeadline), through the named dependency's circuit
// breaker, retrying transient failures per retryCfg. isRetryable decides
// whether a given error should be retried at all; a non-retryable error
// (a client-fault or business-conflict response) short-circuits immediately.
func Call(ctx context.Context, breakers *BreakerRegistry, dependency string, budget time.Duration, retryCfg RetryConfig, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	callCtx, cancel := reqcontext.WithDeadline(ctx, budget)
	defer cancel()

	return classifyBreakerError(Retry(callCtx, retryCfg, func() error {
		_, err := breakers.Execute(dependency, func() (any, error) {
			return nil, fn(callCtx)
		})
		if err != nil && !isRetryable(err) {
			return backoffPermanent(err)
		}
		return err
	}))
}

// CallOnce runs fn with a per-call deadline and circuit breaker protection
// but no retry, for operations where a retried partial effect would be
// unsafe (e.g. reserving seats twice).
func CallOnce(ctx context.Context, breakers *BreakerRegistry, dependency string, budget time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := reqcontext.WithDeadline(ctx, budget)
	defer cancel()

	_, err := breakers.Execute(dependency, func() (any, error) {
		return nil, fn(callCtx)
	})
	return classifyBreakerError(err)
}
