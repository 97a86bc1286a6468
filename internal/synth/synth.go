// Package synth implements the synthesizer helper shared by the
// synthesize tool of spec.md §4.9: picking a synthesizer model and
// building the merge prompt that asks it to unify several models'
// responses into one answer.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

const mergeInstructions = "Write one unified answer to the original question below, drawing on the candidate responses that follow. Do not reference the individual models or mention that this is a synthesis. Be concise."

// Querier is the nested-query capability synthesize needs, satisfied by
// SmartBackend.
type Querier interface {
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
}

// Candidate is one successful source response to merge, labeled by the
// model that produced it.
type Candidate struct {
	ModelID string
	Content string
}

// SelectSynthesizer returns the user's explicit choice if given, else the
// first available model not present in sourceModels.
func SelectSynthesizer(userChoice string, available []model.Info, sourceModels []string) (string, bool) {
	if userChoice != "" {
		return userChoice, true
	}
	return model.SelectByPreference(available, nil, sourceModels...)
}

// BuildPrompt assembles the merge-instructions prompt sent to the
// synthesizer, labeling each candidate by its source model.
func BuildPrompt(question string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString(mergeInstructions)
	b.WriteString("\n\nOriginal question:\n")
	b.WriteString(question)
	b.WriteString("\n\nCandidate responses:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "\n--- from %s ---\n%s\n", c.ModelID, c.Content)
	}
	return b.String()
}

// Synthesize dispatches the merge prompt to synthesizerModel and returns
// its response unchanged; callers fall back to compare-style rendering
// on error.
func Synthesize(ctx context.Context, q Querier, synthesizerModel, question string, candidates []Candidate, opts model.Options) (*model.Response, error) {
	opts.SystemPrompt = ""
	return q.Query(ctx, synthesizerModel, BuildPrompt(question, candidates), opts)
}
