package fetcher

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy governs how the fetcher spaces and bounds its attempts.
// Backoff is deterministic so a run's network behavior is reproducible.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when config supplies none:
// three attempts with a doubling delay capped at ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// ShouldRetry decides whether another attempt is warranted. Non-success
// HTTP statuses and transport errors are all retryable; only context
// cancellation and attempt exhaustion stop the loop. 4xx responses are
// deliberately retried like 5xx, so callers must not rely on fast-fail
// for permanent 404s.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before attempt n+1: base * 2^n, capped.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}
