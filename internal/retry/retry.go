// Package retry implements a bounded retry executor with deterministic
// exponential backoff and a per-error retry veto.
package retry

import (
	"context"
	"time"
)

// Attempt describes one failed attempt about to be retried. It is passed to
// the OnRetry observer and never persisted.
type Attempt struct {
	// Number is the 1-based index of the attempt that just failed.
	Number int
	// Err is the error returned by that attempt.
	Err error
	// NextDelay is the backoff delay before the next attempt.
	NextDelay time.Duration
}

// Config bounds a retried operation. The zero value performs a single
// attempt with no retries.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// RetryCondition vetoes retries per error. Nil means retry everything.
	RetryCondition func(error) bool
	// OnRetry observes each failed attempt before its backoff sleep.
	OnRetry func(Attempt)
}

// sleep is context-aware; replaced in tests to avoid real delays.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, the retry budget is exhausted, or the error
// is vetoed by cfg.RetryCondition. Backoff grows as InitialDelay*2^attempt,
// capped at MaxDelay; no jitter is applied. The last error is returned
// unwrapped so callers can still branch on its kind.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= cfg.MaxRetries {
			return zero, err
		}
		if cfg.RetryCondition != nil && !cfg.RetryCondition(err) {
			return zero, err
		}
		delay := backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(Attempt{Number: attempt + 1, Err: err, NextDelay: delay})
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
