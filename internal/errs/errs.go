// Package errs declares the typed error taxonomy of spec.md §7. Every
// backend and orchestration layer returns one of these so that tool
// handlers can render a consistent "**Recovery:**" line instead of a bare
// error string, following the teacher's fmt.Errorf("...: %w", err)
// wrapping idiom.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Recoverable reports whether an error is worth retrying, the way
// internal/filter classifies its filter Actions in the teacher.
type Recoverable interface {
	error
	Recoverable() bool
}

// ValidationError means the tool input failed schema validation; the
// message is surfaced to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Recoverable() bool { return false }

// RoutingError means an unknown provider prefix, or no backend accepted
// a bare model ID.
type RoutingError struct {
	Model string
	Tried []string
	Cause error
}

func (e *RoutingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no backend could serve model %q (tried: %v): %v", e.Model, e.Tried, e.Cause)
	}
	return fmt.Sprintf("no backend could serve model %q (tried: %v)", e.Model, e.Tried)
}

func (e *RoutingError) Unwrap() error   { return e.Cause }
func (e *RoutingError) Recoverable() bool { return false }

// UnavailableError means the circuit is open for the requested model.
type UnavailableError struct {
	Model            string
	CooldownRemaining time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model %q is temporarily unavailable (circuit open, %s remaining)", e.Model, e.CooldownRemaining.Round(time.Second))
}

func (e *UnavailableError) Recoverable() bool { return false }

// TimeoutError means the per-request deadline was exceeded.
type TimeoutError struct {
	Model string
	After time.Duration
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query to %q timed out after %s: %v", e.Model, e.After, e.Cause)
}

func (e *TimeoutError) Unwrap() error   { return e.Cause }
func (e *TimeoutError) Recoverable() bool { return true }

// TransportError means a network, connection-reset, or DNS failure.
type TransportError struct {
	Model string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error querying %q: %v", e.Model, e.Cause)
}

func (e *TransportError) Unwrap() error   { return e.Cause }
func (e *TransportError) Recoverable() bool { return true }

// BackendError means the backend responded with a non-2xx HTTP status.
// 4xx is non-retryable; 429 and 5xx are retryable.
type BackendError struct {
	Model string
	Code  int
	Body  string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %q returned HTTP %d: %s", e.Model, e.Code, truncate(e.Body, 500))
}

func (e *BackendError) Recoverable() bool {
	return e.Code == 429 || e.Code >= 500
}

// EmptyResponseError means the backend returned fewer than 10
// non-whitespace characters with no reasoning content.
type EmptyResponseError struct {
	Model string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("backend %q returned an empty response", e.Model)
}

func (e *EmptyResponseError) Recoverable() bool { return true }

// AuthError means a 401/403 from a backend, or a failed OAuth refresh.
type AuthError struct {
	Model string
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed for %q: %v", e.Model, e.Cause)
	}
	return fmt.Sprintf("authentication failed for %q", e.Model)
}

func (e *AuthError) Unwrap() error   { return e.Cause }
func (e *AuthError) Recoverable() bool { return false }

// IsRecoverable reports whether err implements Recoverable and says so;
// unknown error types default to non-recoverable.
func IsRecoverable(err error) bool {
	var r Recoverable
	if errors.As(err, &r) {
		return r.Recoverable()
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
