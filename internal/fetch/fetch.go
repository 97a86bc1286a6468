// Package fetch implements the "fetch-with-timeout" shared subprotocol of
// spec.md §4.10: every outbound call gets an overall deadline, with
// cancellation on timeout surfaced as a distinct, retry-eligible error.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
)

// WithTimeout runs fn under a context bounded by timeout, translating a
// context deadline overrun into *errs.TimeoutError so callers (and the
// retry package) can recognize it uniformly regardless of which backend
// produced it.
func WithTimeout(ctx context.Context, modelID string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() == err) {
		return &errs.TimeoutError{Model: modelID, After: time.Since(start), Cause: err}
	}
	return err
}
