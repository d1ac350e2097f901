// Package retry provides bounded exponential backoff for idempotent
// persistence writes.
package retry

import (
	"context"
	"time"
)

// DefaultAttempts is the attempt budget for persistence writes.
const DefaultAttempts = 3

// DefaultBaseDelay is the first backoff delay; it doubles each attempt.
const DefaultBaseDelay = 200 * time.Millisecond

// Backoff returns the delay before the given retry (0-based), doubling the
// base each time.
func Backoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Do runs fn up to attempts times, sleeping Backoff(base, n) between
// attempts. It returns nil on the first success, the last error when the
// budget is exhausted, or the context error if ctx is cancelled while
// waiting.
func Do(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(base, attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
