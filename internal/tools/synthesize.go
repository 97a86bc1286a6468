package tools

import (
	"context"

	"github.com/JustHereToHelp/HydraMCP/internal/fanout"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
	"github.com/JustHereToHelp/HydraMCP/internal/synth"
)

// SynthesizeInput is the validated shape of the synthesize tool's input.
type SynthesizeInput struct {
	Models           []string `json:"models"`
	Prompt           string   `json:"prompt"`
	SynthesizerModel string   `json:"synthesizer_model,omitempty"`
	SystemPrompt     string   `json:"system_prompt,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
}

func validateSynthesize(in SynthesizeInput) error {
	if len(in.Models) < 2 || len(in.Models) > 5 {
		return validationError("models", "must list between 2 and 5 models")
	}
	if in.Prompt == "" {
		return validationError("prompt", "required")
	}
	return nil
}

// Synthesize fans the prompt out to 2-5 models, then merges the
// successful responses into one unified answer via a synthesizer model.
// Falls back to compare-style rendering on synthesizer failure.
func Synthesize(ctx context.Context, b Backend, in SynthesizeInput) Output {
	if err := validateSynthesize(in); err != nil {
		return errorOutput(err)
	}

	opts := queryOptions(in.SystemPrompt, in.Temperature, in.MaxTokens)
	branches := make([]fanout.Branch, len(in.Models))
	for i, m := range in.Models {
		m := m
		branches[i] = fanout.Branch{Label: m, Fn: func(ctx context.Context) (*model.Response, error) {
			return b.Query(ctx, m, in.Prompt, opts)
		}}
	}

	outcomes := fanout.Settle(ctx, len(in.Models), branches)
	successes := fanout.Successes(outcomes)
	failures := fanout.Failures(outcomes)

	if len(successes) < 2 {
		return Output{Text: "**Synthesis failed:** fewer than 2 successful responses.\n\n" + renderErrorsOnly(failures), IsError: true}
	}

	sourceModels := make([]string, len(successes))
	candidates := make([]synth.Candidate, len(successes))
	for i, o := range successes {
		sourceModels[i] = o.Label
		candidates[i] = synth.Candidate{ModelID: o.Label, Content: o.Value.Content}
	}

	available, _ := b.ListModels(ctx)
	synthesizerModel, ok := synth.SelectSynthesizer(in.SynthesizerModel, available, sourceModels)
	if !ok {
		return Output{Text: "**Synthesis failed:** no synthesizer model available outside the source list.\n\n" + renderCompare(successes, failures)}
	}

	synthResp, err := synth.Synthesize(ctx, b, synthesizerModel, in.Prompt, candidates, opts)
	if err != nil {
		return Output{Text: "**Synthesis failed, falling back to individual responses:**\n\n" + renderCompare(successes, failures)}
	}

	return Output{Text: renderSynthesize(synthesizerModel, synthResp, successes, failures)}
}

func renderSynthesize(synthesizerModel string, resp *model.Response, successes, failures []fanout.Outcome) string {
	var out string
	out += "## Synthesized answer (by " + synthesizerModel + ")\n\n"
	out += resp.Content + "\n\n"
	out += "### Source models\n\n"
	for _, o := range successes {
		out += "- " + o.Label + "\n"
	}
	if len(failures) > 0 {
		out += "\n### Errors\n\n"
		for _, o := range failures {
			out += "- **" + o.Label + "**: " + o.Err.Error() + "\n"
		}
	}
	return out
}
