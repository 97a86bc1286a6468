package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/fanout"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// CompareModelsInput is the validated shape of the compare_models tool's
// input.
type CompareModelsInput struct {
	Models       []string `json:"models"`
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

func validateCompareModels(in CompareModelsInput) error {
	if len(in.Models) < 2 || len(in.Models) > 5 {
		return validationError("models", "must list between 2 and 5 models")
	}
	if in.Prompt == "" {
		return validationError("prompt", "required")
	}
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return validationError("temperature", "must be in [0, 2]")
	}
	return nil
}

// CompareModels fans the same prompt out to 2-5 models concurrently and
// renders both successes and failures; it never fails the whole tool if
// at least one model succeeds.
func CompareModels(ctx context.Context, b Backend, in CompareModelsInput) Output {
	if err := validateCompareModels(in); err != nil {
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

	if len(successes) == 0 {
		return Output{Text: renderErrorsOnly(failures), IsError: true}
	}

	return Output{Text: renderCompare(successes, failures)}
}

func renderCompare(successes, failures []fanout.Outcome) string {
	var b strings.Builder

	fastest := successes[0]
	for _, o := range successes[1:] {
		if o.Value.LatencyMs < fastest.Value.LatencyMs {
			fastest = o
		}
	}

	b.WriteString("| model | latency | tokens |\n|---|---|---|\n")
	for _, o := range successes {
		tag := ""
		if o.Label == fastest.Label {
			tag = " (fastest)"
		}
		tokens := 0
		if o.Value.Usage != nil {
			tokens = o.Value.Usage.TotalTokens
		}
		fmt.Fprintf(&b, "| %s%s | %dms | %d |\n", o.Label, tag, o.Value.LatencyMs, tokens)
	}

	for _, o := range successes {
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", o.Label, o.Value.Content)
	}

	if len(failures) > 0 {
		b.WriteString("\n### Errors\n\n")
		for _, o := range failures {
			fmt.Fprintf(&b, "- **%s**: %s\n", o.Label, o.Err.Error())
		}
	}

	return b.String()
}

func renderErrorsOnly(failures []fanout.Outcome) string {
	var b strings.Builder
	b.WriteString("### Errors\n\n")
	for _, o := range failures {
		fmt.Fprintf(&b, "- **%s**: %s\n", o.Label, o.Err.Error())
	}
	return b.String()
}
