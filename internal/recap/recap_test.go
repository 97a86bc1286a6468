package recap

import (
	"context"
	"errors"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
	"github.com/JustHereToHelp/HydraMCP/internal/sessionlog"
)

type scriptedQuerier struct {
	calls     int
	responses []*model.Response
	errs      []error
}

func (q *scriptedQuerier) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	i := q.calls
	q.calls++
	if i < len(q.errs) && q.errs[i] != nil {
		return nil, q.errs[i]
	}
	if i < len(q.responses) {
		return q.responses[i], nil
	}
	return &model.Response{}, nil
}

func transcripts(n int) []sessionlog.Transcript {
	out := make([]sessionlog.Transcript, n)
	for i := range out {
		out[i] = sessionlog.Transcript{Content: "did some work and fixed a bug"}
	}
	return out
}

func TestRun_BothPassesSucceed(t *testing.T) {
	q := &scriptedQuerier{responses: []*model.Response{
		{Content: `{"files_modified": 3, "decisions_made": 1, "errors_resolved": 2, "features_built": 1, "unfinished_work": 0, "total_meaningful_events": 7}`},
		{Content: "## Recap\n\nDid things."},
	}}

	result := Run(context.Background(), q, "gemini-2.5-flash", transcripts(2), 0)
	if result.Partial || result.Recovered {
		t.Fatalf("expected full success, got %+v", result)
	}
	if result.Triage.TotalMeaningfulEvents != 7 {
		t.Errorf("expected triage parsed, got %+v", result.Triage)
	}
	if result.Markdown != "## Recap\n\nDid things." {
		t.Errorf("unexpected markdown: %q", result.Markdown)
	}
}

func TestRun_Pass2FailureFallsBackToTriageOnly(t *testing.T) {
	q := &scriptedQuerier{
		responses: []*model.Response{
			{Content: `{"files_modified": 1, "decisions_made": 0, "errors_resolved": 0, "features_built": 0, "unfinished_work": 0, "total_meaningful_events": 1}`},
		},
		errs: []error{nil, errors.New("recap call failed")},
	}

	result := Run(context.Background(), q, "gemini-2.5-flash", transcripts(1), 0)
	if !result.Partial {
		t.Fatal("expected Partial=true when pass 2 fails but pass 1 succeeds")
	}
	if result.Triage.FilesModified != 1 {
		t.Errorf("expected triage preserved, got %+v", result.Triage)
	}
}

func TestRun_MaxBudgetClampsComputedBudget(t *testing.T) {
	q := &scriptedQuerier{responses: []*model.Response{
		{Content: `{"files_modified": 3, "decisions_made": 1, "errors_resolved": 2, "features_built": 1, "unfinished_work": 0, "total_meaningful_events": 7}`},
		{Content: "## Recap\n\nDid things."},
	}}

	result := Run(context.Background(), q, "gemini-2.5-flash", transcripts(2), 500)
	if result.Budget != 500 {
		t.Errorf("expected maxBudget to clamp computed budget to 500, got %d", result.Budget)
	}
}

func TestRun_BothPassesFailReturnsRecoveryMessage(t *testing.T) {
	q := &scriptedQuerier{errs: []error{errors.New("triage failed"), errors.New("recap failed")}}

	result := Run(context.Background(), q, "gemini-2.5-flash", transcripts(1), 0)
	if !result.Recovered {
		t.Fatal("expected Recovered=true when both passes fail")
	}
	if result.Markdown == "" {
		t.Error("expected a non-empty recovery message")
	}
}

func TestComputeBudget_ClampsToBounds(t *testing.T) {
	if got := computeBudget(1, 0, 1); got != 1000 {
		t.Errorf("expected floor of 1000, got %d", got)
	}
	if got := computeBudget(10_000_000, 1000, 10); got != 30000 {
		t.Errorf("expected ceiling of 30000, got %d", got)
	}
}
