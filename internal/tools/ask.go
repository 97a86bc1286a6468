package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/distill"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// AskModelInput is the validated shape of the ask_model tool's input,
// per spec.md §6.
type AskModelInput struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	SystemPrompt      string   `json:"system_prompt,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxTokens         int      `json:"max_tokens,omitempty"`
	MaxResponseTokens int      `json:"max_response_tokens,omitempty"`
	Format            string   `json:"format,omitempty"` // "brief" | "detailed"
	IncludeRaw        bool     `json:"include_raw,omitempty"`
}

func validateAskModel(in AskModelInput) error {
	if in.Model == "" {
		return validationError("model", "required")
	}
	if in.Prompt == "" {
		return validationError("prompt", "required")
	}
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return validationError("temperature", "must be in [0, 2]")
	}
	if in.Format != "" && in.Format != "brief" && in.Format != "detailed" {
		return validationError("format", "must be 'brief' or 'detailed'")
	}
	return nil
}

// AskModel runs a single SmartBackend.Query and, when max_response_tokens
// was requested, pipes the result through the distiller.
func AskModel(ctx context.Context, b Backend, in AskModelInput) Output {
	if err := validateAskModel(in); err != nil {
		return errorOutput(err)
	}

	maxTokens := defaultInt(in.MaxTokens, 1024)
	opts := queryOptions(in.SystemPrompt, in.Temperature, maxTokens)

	resp, err := b.Query(ctx, in.Model, in.Prompt, opts)
	if err != nil {
		return errorOutput(err)
	}

	raw := *resp
	distillResult := distill.Result{Response: resp}
	if in.MaxResponseTokens > 0 {
		available, _ := b.ListModels(ctx)
		distillResult = distill.Distill(ctx, b, resp, in.MaxResponseTokens, in.Model, available)
	}

	return Output{Text: renderAskModel(in, distillResult, raw)}
}

func renderAskModel(in AskModelInput, d distill.Result, raw model.Response) string {
	resp := d.Response
	format := defaultStr(in.Format, "brief")

	var b strings.Builder
	fmt.Fprintf(&b, "## Response from %s\n\n", resp.Model)

	if resp.Content == "" && resp.ReasoningContent != "" {
		b.WriteString(resp.ReasoningContent)
	} else {
		b.WriteString(resp.Content)
	}
	b.WriteString("\n\n")

	if resp.LatencyMs == 0 {
		b.WriteString("*Latency: 0ms (cached)*\n")
	} else {
		fmt.Fprintf(&b, "*Latency: %dms*\n", resp.LatencyMs)
	}
	if resp.FallbackFrom != "" {
		fmt.Fprintf(&b, "*Fell back from %s*\n", resp.FallbackFrom)
	}

	if format == "detailed" && resp.Usage != nil {
		fmt.Fprintf(&b, "\n| prompt tokens | completion tokens | total tokens |\n|---|---|---|\n| %d | %d | %d |\n",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	if d.Distilled {
		pct := 0.0
		if d.SourceTokens > 0 {
			pct = 100 * (1 - float64(d.DistilledTokens)/float64(d.SourceTokens))
		}
		fmt.Fprintf(&b, "\n**Distilled** by %s in %dms: %d -> %d tokens (%.0f%% saved)\n",
			d.DistillerModel, d.DistillerLatencyMs, d.SourceTokens, d.DistilledTokens, pct)
	}

	if in.IncludeRaw && d.Distilled {
		b.WriteString("\n<details><summary>Raw pre-distillation response</summary>\n\n")
		b.WriteString(raw.Content)
		b.WriteString("\n\n</details>\n")
	}

	if resp.Warning != "" {
		fmt.Fprintf(&b, "\n> **Warning:** %s\n", resp.Warning)
	}

	return b.String()
}
