// Package distill implements the distillation subprotocol of spec.md
// §4.10: compressing a worker model's response down to a token budget by
// delegating to a cheap/fast model, preserving file paths, identifiers,
// error messages, code blocks, URLs, commands, numbers, and step lists.
//
// Grounded on the teacher's internal/router/adapters pattern of a single
// fixed system prompt plus explicit temperature/max_tokens wire fields;
// the nested Querier call is the same shape as any other backend.Query.
package distill

import (
	"context"
	"math"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// skipRatio is the strict skip-band boundary of spec.md §8 S6: a response
// at or under 1.2x the budget is left alone; over it, distillation runs.
const skipRatio = 1.2

// systemPrompt is sent verbatim to the distiller model on every call.
const systemPrompt = "You are a response distiller. Compress the following response to fit the requested token budget while preserving file paths, identifiers, error messages, code blocks, URLs, commands, numbers, and step lists. Strip filler words and redundant phrasing. Do not add commentary about the compression itself."

// preferenceOrder lists distiller candidates from cheapest/fastest to
// most capable; the first available model not equal to the worker model
// is chosen.
var preferenceOrder = []string{
	"gemini-2.5-flash",
	"gpt-5.2-mini",
	"claude-haiku-4-6",
	"gemini-3-flash",
}

// Querier is the nested-query capability distillation needs. SmartBackend
// satisfies it; passing the same orchestrated instance the worker query
// used means the distiller's own call benefits from caching and the
// circuit breaker, per spec.md §9's cyclic-dependency guard.
type Querier interface {
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
}

// Result reports what happened, for the ask_model tool's distillation
// metadata block.
type Result struct {
	Response   *model.Response
	Distilled  bool
	SourceTokens    int
	DistilledTokens int
	DistillerModel  string
	DistillerLatencyMs int64
}

// Distill compresses resp down to budget tokens via a nested Query to a
// preference-ordered distiller model, unless resp is already within
// skipRatio of budget. Available lists the models the distiller may be
// chosen from (typically SmartBackend.ListModels); workerModel is
// excluded from consideration. Any distiller failure returns resp
// unchanged.
func Distill(ctx context.Context, q Querier, resp *model.Response, budget int, workerModel string, available []model.Info) Result {
	observed := observedTokens(resp)
	if budget <= 0 || float64(observed) <= skipRatio*float64(budget) {
		return Result{Response: resp, SourceTokens: observed}
	}

	distillerModel, ok := model.SelectByPreference(available, preferenceOrder, workerModel)
	if !ok {
		return Result{Response: resp, SourceTokens: observed}
	}

	temp := 0.0
	distillResp, err := q.Query(ctx, distillerModel, resp.Content, model.Options{
		SystemPrompt: systemPrompt,
		Temperature:  &temp,
		MaxTokens:    &budget,
	})
	if err != nil {
		return Result{Response: resp, SourceTokens: observed}
	}

	return Result{
		Response:           distillResp,
		Distilled:           true,
		SourceTokens:        observed,
		DistilledTokens:     observedTokens(distillResp),
		DistillerModel:      distillerModel,
		DistillerLatencyMs:  distillResp.LatencyMs,
	}
}

// observedTokens is the reported completion token count, or an
// estimate of ceil(len(content)/4) when usage was not reported.
func observedTokens(resp *model.Response) int {
	if resp.Usage != nil && resp.Usage.CompletionTokens > 0 {
		return resp.Usage.CompletionTokens
	}
	return int(math.Ceil(float64(len(strings.TrimSpace(resp.Content))) / 4))
}
