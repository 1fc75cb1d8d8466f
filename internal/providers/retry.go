package providers

import (
	"context"
	"time"
)

// RetryConfig bounds the completion-call retry policy. The backoff is a
// short fixed delay rather than an exponential ladder; the webhook handler
// upstream must answer quickly, so a call either succeeds within two
// attempts or the router falls back.
type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryConfig returns the single-retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 1, Backoff: 2 * time.Second}
}

// RetryDo runs fn up to 1+MaxRetries times, sleeping Backoff between
// attempts. Context cancellation aborts the wait.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(cfg.Backoff):
			}
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, lastErr
}
