// Package retry wraps outbound generative-API calls with classified,
// jittered exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	// DefaultRateLimitFloor is the minimum wait after a 429, regardless of
	// how small the computed backoff is.
	DefaultRateLimitFloor = 5 * time.Second

	maxJitter = 250 * time.Millisecond
)

// Options control one Do invocation. The zero value gets defaults.
type Options struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitFloor time.Duration

	// Reset runs before the attempt that follows a network error, so the
	// owner can recreate a suspected-stuck client handle.
	Reset func()

	// OnRetry is an observability hook: called with the classified kind and
	// the zero-based attempt that just failed.
	OnRetry func(kind Kind, attempt int)

	// sleep and jitter are injected by tests.
	sleep  func(time.Duration)
	jitter func() time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.RateLimitFloor <= 0 {
		o.RateLimitFloor = DefaultRateLimitFloor
	}
	if o.sleep == nil {
		o.sleep = time.Sleep
	}
	if o.jitter == nil {
		o.jitter = func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) }
	}
	return o
}

// Do runs op until it succeeds, fails with a non-retryable error, the context
// is cancelled, or MaxAttempts is exhausted. Non-retryable errors propagate
// unmodified after a single attempt. On exhaustion the last error is returned
// as-is; callers that need the classification can call Classify on it.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		kind := Classify(err)
		if !kind.Retryable() {
			return zero, err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(kind, attempt)
		}
		if kind == KindNetwork && opts.Reset != nil {
			opts.Reset()
		}

		opts.sleep(Delay(kind, attempt, opts.BaseDelay, opts.RateLimitFloor, opts.jitter()))
	}

	return zero, lastErr
}

// Delay computes the wait before retrying attempt+1: BaseDelay * 2^attempt
// plus jitter, raised to the floor for rate-limited failures.
func Delay(kind Kind, attempt int, base, floor, jitter time.Duration) time.Duration {
	d := base<<uint(attempt) + jitter
	if kind == KindRateLimited && d < floor {
		return floor
	}
	return d
}
