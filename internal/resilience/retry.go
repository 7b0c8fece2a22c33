package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds an exponential-backoff retry loop.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// Retry runs fn until it succeeds, ctx is cancelled, or cfg.MaxElapsedTime
// passes, backing off exponentially between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	expBackoff.MaxElapsedTime = cfg.MaxElapsedTime

	return backoff.Retry(fn, backoff.WithContext(expBackoff, ctx))
}

// backoffPermanent marks err as non-retryable so backoff.Retry returns
// immediately instead of waiting out the schedule for an error Call's caller
// has already classified as not worth retrying.
func backoffPermanent(err error) error {
	return backoff.Permanent(err)
}

// OutboxBackoff computes the fixed exponential schedule the outbox drainer
// uses for a retry-eligible FAILED row: baseSeconds (30 by default),
// doubling per attempt, capped at capSeconds.
func OutboxBackoff(attempts int, baseSeconds, capSeconds int) time.Duration {
	delay := baseSeconds
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= capSeconds {
			return time.Duration(capSeconds) * time.Second
		}
	}
	return time.Duration(delay) * time.Second
}
