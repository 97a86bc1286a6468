package distill

import (
	"context"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeQuerier struct {
	calls int
	resp  *model.Response
	err   error
}

func (f *fakeQuerier) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

var available = []model.Info{{ID: "gemini-2.5-flash"}, {ID: "gpt-4o"}}

func TestDistill_SkipsWithinBand(t *testing.T) {
	q := &fakeQuerier{}
	resp := &model.Response{Content: longContent(600 * 4), Usage: &model.Usage{CompletionTokens: 600}}

	result := Distill(context.Background(), q, resp, 500, "gpt-4o", available)
	if result.Distilled {
		t.Error("expected skip at exactly 1.2x budget")
	}
	if q.calls != 0 {
		t.Errorf("expected no distiller call, got %d", q.calls)
	}
}

func TestDistill_RunsJustOverBand(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{Content: "compressed", Usage: &model.Usage{CompletionTokens: 100}}}
	resp := &model.Response{Content: longContent(601 * 4), Usage: &model.Usage{CompletionTokens: 601}}

	result := Distill(context.Background(), q, resp, 500, "gpt-4o", available)
	if !result.Distilled {
		t.Error("expected distillation to run just over the band")
	}
	if q.calls != 1 {
		t.Errorf("expected one distiller call, got %d", q.calls)
	}
	if result.DistillerModel != "gemini-2.5-flash" {
		t.Errorf("expected gemini-2.5-flash chosen, got %q", result.DistillerModel)
	}
}

func TestDistill_ExcludesWorkerModel(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{Content: "x", Usage: &model.Usage{CompletionTokens: 1}}}
	resp := &model.Response{Content: longContent(2000), Usage: &model.Usage{CompletionTokens: 2000}}

	onlyWorker := []model.Info{{ID: "gemini-2.5-flash"}}
	result := Distill(context.Background(), q, resp, 100, "gemini-2.5-flash", onlyWorker)
	if result.Distilled {
		t.Error("expected no distillation when the only available model is the worker model")
	}
}

func TestDistill_ReturnsRawOnDistillerFailure(t *testing.T) {
	q := &fakeQuerier{err: errBoom}
	resp := &model.Response{Content: longContent(2000), Usage: &model.Usage{CompletionTokens: 2000}}

	result := Distill(context.Background(), q, resp, 100, "gpt-4o", available)
	if result.Distilled {
		t.Error("expected Distilled=false on distiller failure")
	}
	if result.Response != resp {
		t.Error("expected raw response returned unchanged on distiller failure")
	}
}

func longContent(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
