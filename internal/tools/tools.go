// Package tools implements the eight tool handlers of spec.md §4.9: the
// high-level semantics, concurrent fan-out, judge/synthesizer/distiller
// subprotocol wiring, and markdown formatting that sits on top of
// SmartBackend.
//
// Every handler validates its input against the shape in spec.md §6's
// table and returns a single markdown string plus an IsError flag —
// invocation never surfaces a Go error across the tool boundary, per
// spec.md §6: "invocation never surfaces a protocol-level fault for a
// domain-level failure."
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// Backend is the capability every tool handler needs from the
// orchestrator: a single query and the merged, circuit-filtered catalog.
// SmartBackend satisfies this.
type Backend interface {
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
	ListModels(ctx context.Context) ([]model.Info, error)
}

// Output is what every tool handler returns: a markdown text payload and
// whether it represents a domain-level error.
type Output struct {
	Text    string
	IsError bool
}

func errorOutput(err error) Output {
	return Output{Text: renderError(err), IsError: true}
}

// renderError converts a typed error into markdown with an explicit
// "**Recovery:**" line, per spec.md §7.
func renderError(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Error:** %s\n\n", err.Error())
	b.WriteString("**Recovery:** ")
	b.WriteString(recoveryHint(err))
	return b.String()
}

func recoveryHint(err error) string {
	var validation *errs.ValidationError
	var routing *errs.RoutingError
	var unavailable *errs.UnavailableError
	var timeout *errs.TimeoutError
	var transport *errs.TransportError
	var backendErr *errs.BackendError
	var empty *errs.EmptyResponseError
	var auth *errs.AuthError

	switch {
	case errors.As(err, &validation):
		return "fix the input and retry."
	case errors.As(err, &routing):
		return "call list_models to see available models, or check the model ID/provider prefix."
	case errors.As(err, &unavailable):
		return fmt.Sprintf("this model's circuit is open; wait %s and retry, or choose a different model.", unavailable.CooldownRemaining.Round(1e9))
	case errors.As(err, &timeout):
		return "retry, or shorten the prompt/file to reduce response time."
	case errors.As(err, &transport):
		return "check network connectivity and retry."
	case errors.As(err, &backendErr):
		if backendErr.Recoverable() {
			return "the backend is temporarily overloaded; retry shortly."
		}
		return "the request was rejected by the backend; check the model ID and request shape."
	case errors.As(err, &empty):
		return "retry, or try a different model; the backend returned no usable content."
	case errors.As(err, &auth):
		return "check the backend's API key or subscription credentials."
	default:
		return "retry; if the problem persists, try a different model."
	}
}

func validationError(field, message string) error {
	return &errs.ValidationError{Field: field, Message: message}
}

// clampInt clamps v into [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// queryOptions builds model.Options from the common optional input trio.
func queryOptions(systemPrompt string, temperature *float64, maxTokens int) model.Options {
	opts := model.Options{SystemPrompt: systemPrompt}
	if temperature != nil {
		opts.Temperature = temperature
	}
	if maxTokens > 0 {
		opts.MaxTokens = &maxTokens
	}
	return opts
}
