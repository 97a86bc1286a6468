// Package circuit implements the per-model CircuitBreaker of spec.md §4.4:
// a consecutive-failure-count state machine (closed/open/half_open) with a
// cooldown, one record per model, created lazily on first use.
//
// Grounded on the teacher's internal/router/circuit.go state machine
// (closed/open/half_open, Allow/RecordSuccess/RecordFailure), adapted
// from per-provider keying to per-model keying and to return the
// cooldown-remaining duration spec.md's UnavailableError needs.
package circuit

import (
	"log/slog"
	"sync"
	"time"
)

// State is one of the three circuit states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type record struct {
	state               State
	consecutiveFailures int
	lastFailure         time.Time
}

// Breaker tracks one circuit record per model.
type Breaker struct {
	mu          sync.Mutex
	records     map[string]*record
	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger
}

// New creates a Breaker. maxFailures defaults to 3, cooldown to 60s when
// given as zero.
func New(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		records:     make(map[string]*record),
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      slog.Default(),
	}
}

// SetLogger overrides the Breaker's logger, used by main.go to route circuit
// transition lines through the process-wide structured logger instead of
// slog.Default().
func (b *Breaker) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// IsOpen reports whether model is currently circuit-open, transitioning
// open→half_open as a side effect once the cooldown has elapsed (per
// spec.md §3's CircuitRecord invariant).
func (b *Breaker) IsOpen(model string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[model]
	if !ok {
		return false
	}
	switch r.state {
	case StateClosed:
		return false
	case StateHalfOpen:
		return false
	case StateOpen:
		if time.Since(r.lastFailure) >= b.cooldown {
			r.state = StateHalfOpen
			b.logger.Info("circuit transition", "model", model, "from", StateOpen, "to", StateHalfOpen)
			return false
		}
		return true
	}
	return false
}

// CooldownRemaining returns how long until an open model's cooldown
// elapses, or zero if it is not open.
func (b *Breaker) CooldownRemaining(model string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[model]
	if !ok || r.state != StateOpen {
		return 0
	}
	remaining := b.cooldown - time.Since(r.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess resets the circuit for model. A success while half-open
// closes the circuit (deletes the record, per §3's "closed: absent or
// consecutive_failures == 0" invariant); a success while closed is a
// no-op (there is nothing to reset).
func (b *Breaker) RecordSuccess(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[model]
	if !ok {
		return
	}
	if r.state == StateHalfOpen || r.state == StateClosed {
		if r.state == StateHalfOpen {
			b.logger.Info("circuit transition", "model", model, "from", StateHalfOpen, "to", StateClosed)
		}
		delete(b.records, model)
	}
}

// RecordFailure increments the consecutive-failure count for model,
// opening the circuit once maxFailures is reached, or immediately
// reopening a half-open probe that failed.
func (b *Breaker) RecordFailure(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[model]
	if !ok {
		r = &record{state: StateClosed}
		b.records[model] = r
	}

	r.consecutiveFailures++
	r.lastFailure = time.Now()

	switch r.state {
	case StateClosed:
		if r.consecutiveFailures >= b.maxFailures {
			r.state = StateOpen
			b.logger.Warn("circuit transition", "model", model, "from", StateClosed, "to", StateOpen, "consecutive_failures", r.consecutiveFailures)
		}
	case StateHalfOpen:
		r.state = StateOpen
		b.logger.Warn("circuit transition", "model", model, "from", StateHalfOpen, "to", StateOpen)
	}
}

// OpenModels returns the models currently open and still within their
// cooldown window — a read-only check that does not trigger the
// open→half_open transition IsOpen does.
func (b *Breaker) OpenModels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for model, r := range b.records {
		if r.state == StateOpen && time.Since(r.lastFailure) < b.cooldown {
			out = append(out, model)
		}
	}
	return out
}
