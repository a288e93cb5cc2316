// Package retry retries an operation with exponential backoff and jitter.
// The server uses it to wait out databases and caches that come up after it.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Policy bounds a retry loop.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration // 0 means uncapped
}

// Startup is the policy for dependencies checked while the server boots.
var Startup = Policy{Attempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The delay doubles after each failure with +-25% jitter.
// onRetry, when set, is told about each failure that will be retried.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempts := max(p.Attempts, 1)
	delay := p.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt == attempts {
			return errors.Wrapf(err, "gave up after %d attempts", attempts)
		}

		wait := jitter(delay)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.CombineErrors(ctx.Err(), err)
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := int64(d / 4)
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread) + time.Duration(rand.Int64N(2*spread+1))
}
