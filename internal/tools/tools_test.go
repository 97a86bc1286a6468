package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeBackend struct {
	byModel map[string]*model.Response
	errs    map[string]error
	models  []model.Info
}

func (f *fakeBackend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	if err, ok := f.errs[modelID]; ok {
		return nil, err
	}
	if resp, ok := f.byModel[modelID]; ok {
		return resp, nil
	}
	return &model.Response{Model: modelID, Content: "default"}, nil
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]model.Info, error) {
	return f.models, nil
}

func TestAskModel_ValidationRejectsMissingFields(t *testing.T) {
	b := &fakeBackend{}
	out := AskModel(context.Background(), b, AskModelInput{})
	if !out.IsError {
		t.Fatal("expected validation error for missing model/prompt")
	}
}

func TestAskModel_RendersSuccessfulResponse(t *testing.T) {
	b := &fakeBackend{byModel: map[string]*model.Response{
		"gpt-4o": {Model: "gpt-4o", Content: "hello world", LatencyMs: 400, Usage: &model.Usage{TotalTokens: 10}},
	}}
	out := AskModel(context.Background(), b, AskModelInput{Model: "gpt-4o", Prompt: "hi"})
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	if !strings.Contains(out.Text, "hello world") {
		t.Errorf("expected response content in output, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "400ms") {
		t.Errorf("expected latency in output, got %q", out.Text)
	}
}

func TestAskModel_CacheHitShowsZeroLatency(t *testing.T) {
	b := &fakeBackend{byModel: map[string]*model.Response{
		"gpt-4o": {Model: "gpt-4o", Content: "cached", LatencyMs: 0},
	}}
	out := AskModel(context.Background(), b, AskModelInput{Model: "gpt-4o", Prompt: "hi"})
	if !strings.Contains(out.Text, "0ms (cached)") {
		t.Errorf("expected cache indicator in output, got %q", out.Text)
	}
}

func TestCompareModels_SucceedsWithOneFailure(t *testing.T) {
	b := &fakeBackend{
		byModel: map[string]*model.Response{
			"m1": {Model: "m1", Content: "fast", LatencyMs: 100},
			"m2": {Model: "m2", Content: "slow", LatencyMs: 500},
		},
		errs: map[string]error{"m3": errors.New("boom")},
	}
	out := CompareModels(context.Background(), b, CompareModelsInput{Models: []string{"m1", "m2", "m3"}, Prompt: "p"})
	if out.IsError {
		t.Fatalf("expected success with partial failure, got error: %s", out.Text)
	}
	if !strings.Contains(out.Text, "fastest") {
		t.Error("expected fastest tag in output")
	}
	if !strings.Contains(out.Text, "### Errors") {
		t.Error("expected errors section for m3")
	}
}

func TestCompareModels_AllFailReturnsErrorOnly(t *testing.T) {
	b := &fakeBackend{errs: map[string]error{
		"m1": errors.New("boom1"),
		"m2": errors.New("boom2"),
	}}
	out := CompareModels(context.Background(), b, CompareModelsInput{Models: []string{"m1", "m2"}, Prompt: "p"})
	if !out.IsError {
		t.Fatal("expected IsError when all models fail")
	}
}

func TestCompareModels_ValidatesModelCountBounds(t *testing.T) {
	b := &fakeBackend{}
	out := CompareModels(context.Background(), b, CompareModelsInput{Models: []string{"m1"}, Prompt: "p"})
	if !out.IsError {
		t.Fatal("expected validation error for fewer than 2 models")
	}
}

func TestListModels_GroupsByProvider(t *testing.T) {
	b := &fakeBackend{models: []model.Info{
		{ID: "openai/gpt-4o", ProviderKey: "openai"},
		{ID: "anthropic/claude-opus-4-6", ProviderKey: "anthropic"},
	}}
	out := ListModels(context.Background(), b, nil)
	if out.IsError {
		t.Fatalf("unexpected error: %s", out.Text)
	}
	if !strings.Contains(out.Text, "### anthropic") || !strings.Contains(out.Text, "### openai") {
		t.Errorf("expected both provider sections, got %q", out.Text)
	}
}
