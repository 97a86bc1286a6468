package multibackend

import (
	"context"
	"errors"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeBackend struct {
	name      string
	models    []model.Info
	listErr   error
	healthy   bool
	queryErr  error
	queryResp *model.Response
	calls     int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeBackend) ListModels(ctx context.Context) ([]model.Info, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeBackend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	f.calls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryResp, nil
}

func TestMultiBackend_PrefixedRoutesExclusively(t *testing.T) {
	openai := &fakeBackend{name: "openai", queryResp: &model.Response{Model: "gpt-4o", Content: "hi"}}
	ollama := &fakeBackend{name: "ollama", queryResp: &model.Response{Model: "qwen", Content: "hello"}}

	mb := New()
	mb.Register(openai)
	mb.Register(ollama)

	resp, err := mb.Query(context.Background(), "ollama/qwen", "p", model.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected ollama's response, got %q", resp.Content)
	}
	if openai.calls != 0 {
		t.Errorf("expected openai not to be called, got %d calls", openai.calls)
	}
	if ollama.calls != 1 {
		t.Errorf("expected ollama called once, got %d", ollama.calls)
	}
}

func TestMultiBackend_PrefixedUnknownProviderFails(t *testing.T) {
	mb := New()
	mb.Register(&fakeBackend{name: "openai"})

	_, err := mb.Query(context.Background(), "unknown/model", "p", model.Options{})
	if err == nil {
		t.Fatal("expected error for unknown provider prefix")
	}
}

func TestMultiBackend_BareIDTriesInRegistrationOrder(t *testing.T) {
	openai := &fakeBackend{name: "openai", queryErr: errors.New("not found")}
	ollama := &fakeBackend{name: "ollama", queryResp: &model.Response{Model: "qwen", Content: "from ollama"}}

	mb := New()
	mb.Register(openai)
	mb.Register(ollama)

	resp, err := mb.Query(context.Background(), "qwen", "p", model.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from ollama" {
		t.Errorf("expected fallback to ollama, got %q", resp.Content)
	}
	if openai.calls != 1 {
		t.Errorf("expected openai tried once, got %d", openai.calls)
	}
}

func TestMultiBackend_BareIDFailsWhenAllFail(t *testing.T) {
	openai := &fakeBackend{name: "openai", queryErr: errors.New("boom")}
	ollama := &fakeBackend{name: "ollama", queryErr: errors.New("boom too")}

	mb := New()
	mb.Register(openai)
	mb.Register(ollama)

	_, err := mb.Query(context.Background(), "qwen", "p", model.Options{})
	if err == nil {
		t.Fatal("expected error when all backends fail")
	}
}

func TestMultiBackend_ListModelsPrefixesIDsAndToleratesFailure(t *testing.T) {
	openai := &fakeBackend{name: "openai", models: []model.Info{{ID: "gpt-4o", DisplayName: "GPT-4o"}}}
	broken := &fakeBackend{name: "broken", listErr: errors.New("unreachable")}

	mb := New()
	mb.Register(openai)
	mb.Register(broken)

	models, err := mb.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model (broken backend omitted), got %d", len(models))
	}
	if models[0].ID != "openai/gpt-4o" {
		t.Errorf("expected prefixed ID openai/gpt-4o, got %q", models[0].ID)
	}
}

func TestMultiBackend_HealthCheckTrueIfAnyHealthy(t *testing.T) {
	mb := New()
	mb.Register(&fakeBackend{name: "openai", healthy: false})
	mb.Register(&fakeBackend{name: "ollama", healthy: true})

	if !mb.HealthCheck(context.Background()) {
		t.Error("expected healthy because one backend is healthy")
	}
}

func TestMultiBackend_HealthCheckFalseWhenEmpty(t *testing.T) {
	mb := New()
	if mb.HealthCheck(context.Background()) {
		t.Error("expected unhealthy with no registered backends")
	}
}
