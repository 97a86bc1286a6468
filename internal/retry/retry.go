// Package retry implements the "retry-with-backoff" shared subprotocol of
// spec.md §4.10, grounded on the pack's resilience.Retry shape: exponential
// delay base*2^attempt, capped, retrying only on errors errs.IsRecoverable
// considers retryable (transport errors, timeouts, empty responses, 429s,
// and 5xxs) — never on 400/401/403/404.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
)

// Policy configures a retry loop.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Default is spec.md's "default 2 retries" policy.
func Default() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Do runs fn, retrying up to p.MaxRetries times on a Recoverable error with
// exponential backoff. A non-recoverable error, or context cancellation,
// returns immediately.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func isRetryable(err error) bool {
	return errs.IsRecoverable(err)
}
