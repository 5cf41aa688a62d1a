// Package retry executes fallible operations with a bounded attempt count and
// a fixed inter-attempt delay. There is no backoff growth: sources here are
// polled on a schedule and a constant delay keeps run duration predictable.
package retry

import (
	"context"
	"time"
)

// Policy configures one execution. Attempts is the total number of tries
// (minimum 1). If ShouldRetry is non-nil, an error for which it returns false
// stops the loop immediately; otherwise every error is retried. OnAttempt is
// called after each failed attempt (1-based index) for observability.
type Policy struct {
	Attempts    int
	Delay       time.Duration
	ShouldRetry func(error) bool
	OnAttempt   func(attempt int, err error)
}

// Do runs op up to p.Attempts times and returns the first success. When all
// attempts fail, the last error is returned unchanged; earlier errors are only
// reported through OnAttempt. Idempotency of op is the caller's concern:
// a retried operation re-runs its side effects.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for i := 1; i <= attempts; i++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			break
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(p.Delay):
		}
	}
	return zero, lastErr
}
