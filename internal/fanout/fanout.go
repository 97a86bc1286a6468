// Package fanout implements the settled-semantics structured concurrency
// helper spec.md §5 requires for compare_models, consensus, synthesize,
// and the parallel branch of list_models: every branch runs independently
// and completion is awaited as a set, successes and failures both
// collected, no branch cancels its siblings.
//
// golang.org/x/sync/errgroup ships in the example pack's go.mod (pulled in
// transitively; no source file in the pack actually imports it) for its
// bounded-concurrency SetLimit. Its Wait() semantics — cancel the group's
// context on the first error — are exactly wrong for "settled" fan-out, so
// every branch func here always returns a nil error to the group; outcomes
// are recorded through a result slice instead of through errgroup's own
// error propagation.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// Branch is one independent query to fan out, identified by Label (a
// model ID) for later reporting.
type Branch struct {
	Label string
	Fn    func(ctx context.Context) (*model.Response, error)
}

// Outcome is one branch's settled result: exactly one of Value or Err is
// set.
type Outcome struct {
	Label string
	Value *model.Response
	Err   error
}

// Settle runs every branch concurrently, bounded to limit simultaneous
// branches (limit <= 0 means unbounded), and returns one Outcome per
// branch in the same order as the input. No branch's failure affects any
// other branch.
func Settle(ctx context.Context, limit int, branches []Branch) []Outcome {
	outcomes := make([]Outcome, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, b := range branches {
		i, b := i, b
		g.Go(func() error {
			value, err := b.Fn(gctx)
			outcomes[i] = Outcome{Label: b.Label, Value: value, Err: err}
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// Successes filters outcomes down to those that succeeded, preserving order.
func Successes(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

// Failures filters outcomes down to those that failed, preserving order.
func Failures(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
