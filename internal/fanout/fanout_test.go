package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

func TestSettle_CollectsBothSuccessesAndFailures(t *testing.T) {
	branches := []Branch{
		{Label: "m1", Fn: func(ctx context.Context) (*model.Response, error) {
			return &model.Response{Model: "m1", Content: "ok"}, nil
		}},
		{Label: "m2", Fn: func(ctx context.Context) (*model.Response, error) {
			return nil, errors.New("boom")
		}},
		{Label: "m3", Fn: func(ctx context.Context) (*model.Response, error) {
			return &model.Response{Model: "m3", Content: "also ok"}, nil
		}},
	}

	outcomes := Settle(context.Background(), 0, branches)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Value.Content != "ok" {
		t.Errorf("expected m1 to succeed, got %+v", outcomes[0])
	}
	if outcomes[1].Err == nil {
		t.Error("expected m2 to fail")
	}
	if outcomes[2].Err != nil {
		t.Error("expected m3 to succeed despite m2's failure")
	}

	if len(Successes(outcomes)) != 2 {
		t.Errorf("expected 2 successes, got %d", len(Successes(outcomes)))
	}
	if len(Failures(outcomes)) != 1 {
		t.Errorf("expected 1 failure, got %d", len(Failures(outcomes)))
	}
}

func TestSettle_PreservesInputOrder(t *testing.T) {
	branches := make([]Branch, 5)
	for i := range branches {
		label := string(rune('a' + i))
		branches[i] = Branch{Label: label, Fn: func(ctx context.Context) (*model.Response, error) {
			return &model.Response{Content: "x"}, nil
		}}
	}

	outcomes := Settle(context.Background(), 2, branches)
	for i, o := range outcomes {
		want := string(rune('a' + i))
		if o.Label != want {
			t.Errorf("outcome[%d]: expected label %q, got %q", i, want, o.Label)
		}
	}
}

func TestSettle_SiblingFailureDoesNotCancelOthers(t *testing.T) {
	branches := []Branch{
		{Label: "fails-fast", Fn: func(ctx context.Context) (*model.Response, error) {
			return nil, errors.New("immediate failure")
		}},
		{Label: "checks-context", Fn: func(ctx context.Context) (*model.Response, error) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &model.Response{Content: "survived"}, nil
		}},
	}

	outcomes := Settle(context.Background(), 0, branches)
	if outcomes[1].Err != nil {
		t.Errorf("expected second branch unaffected by first branch's failure, got %v", outcomes[1].Err)
	}
}
