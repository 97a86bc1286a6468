// Package recap implements the two-pass session-recap flow of spec.md
// §4.9: a triage pass that extracts structured counts from N recent
// session transcripts, followed by a budgeted recap pass that renders
// the final markdown summary.
package recap

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/jsonx"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
	"github.com/JustHereToHelp/HydraMCP/internal/sessionlog"
)

const triageSystemPrompt = "You are a session-recap triage assistant. Read the following session transcripts and respond with JSON only, of the exact shape {\"files_modified\": N, \"decisions_made\": N, \"errors_resolved\": N, \"features_built\": N, \"unfinished_work\": N, \"total_meaningful_events\": N}, counting distinct occurrences across all transcripts."

const recapSystemPrompt = "You are a session-recap assistant. Using the transcripts and the triage counts below, write a markdown recap within the given token budget, weighting sections by their relative share of the triage counts: files modified, decisions made, errors resolved, features built, and unfinished work."

// triageMaxTokens bounds the triage call's own response.
const triageMaxTokens = 256

// Triage is the structured output of pass 1.
type Triage struct {
	FilesModified         int `json:"files_modified"`
	DecisionsMade         int `json:"decisions_made"`
	ErrorsResolved        int `json:"errors_resolved"`
	FeaturesBuilt         int `json:"features_built"`
	UnfinishedWork        int `json:"unfinished_work"`
	TotalMeaningfulEvents int `json:"total_meaningful_events"`
}

// Querier is the nested-query capability the recap flow needs, satisfied
// by SmartBackend.
type Querier interface {
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
}

// Result is the settled outcome of the two-pass flow, for the
// session_recap tool to render.
type Result struct {
	Markdown     string
	Triage       Triage
	Budget       int
	Partial      bool // Pass 2 failed; Markdown is triage-only.
	Recovered    bool // both passes failed; Markdown is a recovery message.
}

// Run executes the triage pass then the recap pass over transcripts
// using model for both calls. maxBudget, if positive, caps the computed
// Pass 2 token budget below spec.md §4.9's own 30000 ceiling (the
// session_recap tool's optional max_summary_tokens input); pass 0 to use
// the formula's ceiling unmodified.
func Run(ctx context.Context, q Querier, modelID string, transcripts []sessionlog.Transcript, maxBudget int) Result {
	combined := combineTranscripts(transcripts)

	triage, triageOK := runTriage(ctx, q, modelID, combined)
	if !triageOK {
		triage = Triage{}
	}

	budget := computeBudget(estimateInputTokens(combined), triage.TotalMeaningfulEvents, len(transcripts))
	if maxBudget > 0 && budget > maxBudget {
		budget = maxBudget
	}

	markdown, recapOK := runRecapPass(ctx, q, modelID, combined, triage, budget)
	if recapOK {
		return Result{Markdown: markdown, Triage: triage, Budget: budget}
	}

	if triageOK {
		return Result{Markdown: triageOnlyFallback(triage), Triage: triage, Budget: budget, Partial: true}
	}

	return Result{Markdown: recoveryMessage(), Recovered: true}
}

func combineTranscripts(transcripts []sessionlog.Transcript) string {
	var b strings.Builder
	for _, t := range transcripts {
		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", t.Path, t.ModTime.Format("2006-01-02 15:04"), t.Content)
	}
	return b.String()
}

func runTriage(ctx context.Context, q Querier, modelID, transcripts string) (Triage, bool) {
	maxTok := triageMaxTokens
	resp, err := q.Query(ctx, modelID, transcripts, model.Options{
		SystemPrompt: triageSystemPrompt,
		MaxTokens:    &maxTok,
	})
	if err != nil {
		return Triage{}, false
	}

	raw, ok := jsonx.ExtractBalancedBraces(resp.Content)
	if !ok {
		return Triage{}, false
	}

	var triage Triage
	if err := json.Unmarshal([]byte(raw), &triage); err != nil {
		return Triage{}, false
	}
	return triage, true
}

func runRecapPass(ctx context.Context, q Querier, modelID, transcripts string, triage Triage, budget int) (string, bool) {
	weights := sectionWeights(triage)
	prompt := fmt.Sprintf("%s\n\nTriage counts: %+v\nSection weights: %+v\nToken budget: %d\n\nTranscripts:\n%s",
		recapSystemPrompt, triage, weights, budget, transcripts)
	maxTok := budget
	resp, err := q.Query(ctx, modelID, prompt, model.Options{MaxTokens: &maxTok})
	if err != nil {
		return "", false
	}
	return resp.Content, true
}

// computeBudget implements spec.md §4.9's Pass 2 token-budget formula.
func computeBudget(inputTokens, events, sessions int) int {
	density := clampFloat(float64(events)/20, 0.5, 2.0)
	multiSessionBonus := 1 + float64(sessions-1)*0.3
	raw := math.Round(0.04 * float64(inputTokens) * density * multiSessionBonus)
	return int(clampFloat(raw, 1000, 30000))
}

// sectionWeights returns each section's proportional share of the
// triage's total events, with a 10% floor so no section vanishes
// entirely from a lopsided triage.
func sectionWeights(t Triage) map[string]float64 {
	counts := map[string]float64{
		"files_modified":  float64(t.FilesModified),
		"decisions_made":  float64(t.DecisionsMade),
		"errors_resolved": float64(t.ErrorsResolved),
		"features_built":  float64(t.FeaturesBuilt),
		"unfinished_work": float64(t.UnfinishedWork),
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	weights := make(map[string]float64, len(counts))
	const floor = 0.10
	if total == 0 {
		for k := range counts {
			weights[k] = 1.0 / float64(len(counts))
		}
		return weights
	}
	for k, c := range counts {
		w := c / total
		if w < floor {
			w = floor
		}
		weights[k] = w
	}
	return weights
}

func estimateInputTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func triageOnlyFallback(t Triage) string {
	return fmt.Sprintf(`## Session Recap (partial — triage only)

The recap model failed; showing triage counts only.

- Files modified: %d
- Decisions made: %d
- Errors resolved: %d
- Features built: %d
- Unfinished work: %d
- Total meaningful events: %d
`, t.FilesModified, t.DecisionsMade, t.ErrorsResolved, t.FeaturesBuilt, t.UnfinishedWork, t.TotalMeaningfulEvents)
}

func recoveryMessage() string {
	return "## Session Recap\n\nBoth the triage and recap passes failed. No summary could be generated; try again or narrow the number of sessions."
}
