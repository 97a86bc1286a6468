package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/fanout"
	"github.com/JustHereToHelp/HydraMCP/internal/judge"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// ConsensusInput is the validated shape of the consensus tool's input.
type ConsensusInput struct {
	Models       []string `json:"models"`
	Prompt       string   `json:"prompt"`
	Strategy     string   `json:"strategy,omitempty"` // "majority" | "supermajority" | "unanimous"
	JudgeModel   string   `json:"judge_model,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

func validateConsensus(in ConsensusInput) error {
	if len(in.Models) < 3 || len(in.Models) > 7 {
		return validationError("models", "must list between 3 and 7 models")
	}
	if in.Prompt == "" {
		return validationError("prompt", "required")
	}
	switch in.Strategy {
	case "", "majority", "supermajority", "unanimous":
	default:
		return validationError("strategy", "must be majority, supermajority, or unanimous")
	}
	return nil
}

func requiredQuorum(strategy string, n int) int {
	switch strategy {
	case "supermajority":
		return int(math.Ceil(float64(n) * 0.66))
	case "unanimous":
		return n
	default:
		return int(math.Ceil(float64(n) * 0.5))
	}
}

// Consensus polls 3-7 models concurrently, judges agreement, and reports
// whether the configured quorum strategy was reached.
func Consensus(ctx context.Context, b Backend, in ConsensusInput) Output {
	if err := validateConsensus(in); err != nil {
		return errorOutput(err)
	}

	strategy := defaultStr(in.Strategy, "majority")
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

	n := len(successes)
	required := requiredQuorum(strategy, n)

	contents := make([]string, n)
	for i, o := range successes {
		contents[i] = o.Value.Content
	}

	judgeModel := defaultStr(in.JudgeModel, successes[0].Label)
	verdict := judge.Judge(ctx, b, judgeModel, contents)
	agreeingIdx := judge.LargestGroup(verdict)

	agreeing := make([]fanout.Outcome, 0, len(agreeingIdx))
	agreeingSet := make(map[int]bool, len(agreeingIdx))
	for _, idx := range agreeingIdx {
		agreeingSet[idx] = true
		agreeing = append(agreeing, successes[idx])
	}
	var dissenting []fanout.Outcome
	for i, o := range successes {
		if !agreeingSet[i] {
			dissenting = append(dissenting, o)
		}
	}

	reached := len(agreeing) >= required
	confidence := float64(len(agreeing)) / float64(n)

	return Output{Text: renderConsensus(strategy, reached, required, confidence, agreeing, dissenting, failures, verdict)}
}

func renderConsensus(strategy string, reached bool, required int, confidence float64, agreeing, dissenting, failures []fanout.Outcome, verdict judge.Verdict) string {
	var b strings.Builder

	status := "NOT REACHED"
	if reached {
		status = "REACHED"
	}
	fmt.Fprintf(&b, "**Consensus: %s** (strategy: %s, required: %d)\n", status, strategy, required)
	fmt.Fprintf(&b, "**Agreement:** %d/%d (%.0f%%)\n\n", len(agreeing), len(agreeing)+len(dissenting), confidence*100)

	if len(agreeing) > 0 {
		fmt.Fprintf(&b, "### Consensus answer (from %s)\n\n%s\n\n", agreeing[0].Label, agreeing[0].Value.Content)
	}

	b.WriteString("| model | agreement |\n|---|---|\n")
	for _, o := range agreeing {
		fmt.Fprintf(&b, "| %s | agree |\n", o.Label)
	}
	for _, o := range dissenting {
		fmt.Fprintf(&b, "| %s | dissent |\n", o.Label)
	}

	if len(dissenting) > 0 {
		b.WriteString("\n### Dissent\n\n")
		for _, o := range dissenting {
			fmt.Fprintf(&b, "- **%s**: %s\n", o.Label, o.Value.Content)
		}
	}

	if verdict.FellBackToHeuristic {
		b.WriteString("\n*Agreement determined by keyword-Jaccard fallback; the judge call failed.*\n")
	}

	if len(failures) > 0 {
		fmt.Fprintf(&b, "\n### Errors (%d)\n\n", len(failures))
		for _, o := range failures {
			fmt.Fprintf(&b, "- **%s**: %s\n", o.Label, o.Err.Error())
		}
	}

	return b.String()
}
