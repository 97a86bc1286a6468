package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/recap"
	"github.com/JustHereToHelp/HydraMCP/internal/sessionlog"
)

// SessionRecapInput is the validated shape of the session_recap tool's
// input.
type SessionRecapInput struct {
	Sessions         int    `json:"sessions,omitempty"`
	Project          string `json:"project,omitempty"`
	Focus            string `json:"focus,omitempty"`
	Model            string `json:"model,omitempty"`
	MaxSummaryTokens int    `json:"max_summary_tokens,omitempty"`
}

// SessionRecap runs the two-pass triage/recap flow over the N most recent
// transcripts for a project (auto-detected when unset), on a
// large-context model.
func SessionRecap(ctx context.Context, b Backend, reader *sessionlog.Reader, in SessionRecapInput) Output {
	sessions := clampInt(defaultInt(in.Sessions, 3), 1, 10)

	project := in.Project
	if project == "" {
		detected, ok := reader.MostRecentProject()
		if !ok {
			return errorOutput(validationError("project", "no project specified and none could be auto-detected"))
		}
		project = detected
	}

	transcripts, err := reader.Recent(project, sessions)
	if err != nil {
		return errorOutput(err)
	}
	if len(transcripts) == 0 {
		return Output{Text: fmt.Sprintf("No session transcripts found for project %q.\n", project)}
	}

	available, _ := b.ListModels(ctx)
	chosen, ok := pickLargeContextModel(in.Model, available)
	if !ok {
		return errorOutput(validationError("model", "no large-context model available"))
	}

	result := recap.Run(ctx, b, chosen, transcripts, clampInt(in.MaxSummaryTokens, 0, 30000))
	return Output{Text: renderSessionRecap(project, len(transcripts), chosen, in.Focus, result)}
}

func renderSessionRecap(project string, sessionCount int, modelID, focus string, result recap.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session Recap — %s\n\n*%d session(s) · model: %s · budget: %d tokens*\n\n", project, sessionCount, modelID, result.Budget)
	if focus != "" {
		fmt.Fprintf(&b, "*Focus: %s*\n\n", focus)
	}
	b.WriteString(result.Markdown)
	if result.Partial {
		b.WriteString("\n\n*This recap is partial: the full recap pass failed and only triage counts are shown.*\n")
	}
	return b.String()
}
