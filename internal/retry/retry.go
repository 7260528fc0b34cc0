// Package retry provides the bounded-retry primitive shared by the
// orchestrator and the daily tasks: a fixed number of attempts with a fixed
// delay in between. No jitter, no backoff: operations that are still failing
// after the budget is spent are escalated to the durable retry queue instead.
package retry

import (
	"context"
	"errors"
	"time"
)

// permanentError marks a failure that must not be retried locally, e.g. a
// malformed response from a call that may already have taken effect.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do and DoBool stop immediately instead of spending
// the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to attempts times, sleeping delay between failures. The first
// success returns immediately; the final failure's error is returned to the
// caller. The delay is context-aware, so cancellation cuts the wait short.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
	}
	return zero, lastErr
}

// DoBool is the boolean-protocol variant: fn reports success itself and a
// terminal false is returned after the last failed attempt.
func DoBool(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) bool) bool {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return false
			}
		}
		if fn(ctx) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
