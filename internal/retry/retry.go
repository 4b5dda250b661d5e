// Package retry wraps fallible calls with bounded, cancellation-aware
// retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffFunc returns the delay before the given attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// Linear backs off by step, 2*step, 3*step, ...
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Stop wraps an error so Do returns it immediately, for failures that
// further attempts cannot fix.
func Stop(err error) error {
	return &stopError{err: err}
}

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Do runs fn up to attempts times, sleeping per backoff between tries.
// It stops early when the context is cancelled or fn returns a Stop
// error, and wraps the last error once the attempts are exhausted.
func Do(ctx context.Context, attempts int, backoff BackoffFunc, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		if err := fn(ctx); err != nil {
			var stop *stopError
			if errors.As(err, &stop) {
				return stop.err
			}
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
