package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeQuerier struct {
	resp *model.Response
	err  error
}

func (f *fakeQuerier) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestJudge_ParsesValidGrouping(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{
		Content: `Here is my analysis: {"groups": [[0,1],[2]], "reasoning": "0 and 1 agree"}`,
	}}

	v := Judge(context.Background(), q, "judge-model", []string{"r0", "r1", "r2"})
	if v.FellBackToHeuristic {
		t.Fatal("expected judge result, not heuristic fallback")
	}
	largest := LargestGroup(v)
	if len(largest) != 2 {
		t.Errorf("expected largest group of size 2, got %v", largest)
	}
}

func TestJudge_FallsBackOnDispatchFailure(t *testing.T) {
	q := &fakeQuerier{err: errors.New("boom")}

	v := Judge(context.Background(), q, "judge-model", []string{
		"the quick system failed with timeout exception",
		"the quick system failed with timeout exception",
		"completely different response about weather forecasts",
	})
	if !v.FellBackToHeuristic {
		t.Fatal("expected heuristic fallback on dispatch failure")
	}
	largest := LargestGroup(v)
	if len(largest) < 2 {
		t.Errorf("expected responses 0 and 1 to agree via keyword overlap, got %v", largest)
	}
}

func TestJudge_FallsBackOnInvalidGrouping(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{
		Content: `{"groups": [[0,5]], "reasoning": "bad index"}`,
	}}

	v := Judge(context.Background(), q, "judge-model", []string{"r0", "r1"})
	if !v.FellBackToHeuristic {
		t.Fatal("expected heuristic fallback on out-of-range index")
	}
}

func TestJudge_FallsBackOnUnparseableContent(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{Content: "no json here at all"}}

	v := Judge(context.Background(), q, "judge-model", []string{"r0", "r1"})
	if !v.FellBackToHeuristic {
		t.Fatal("expected heuristic fallback when no JSON object is present")
	}
}
