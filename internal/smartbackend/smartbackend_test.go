package smartbackend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/cache"
	"github.com/JustHereToHelp/HydraMCP/internal/circuit"
	"github.com/JustHereToHelp/HydraMCP/internal/metrics"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeInner struct {
	calls   int
	err     error
	resp    *model.Response
	healthy bool
}

func (f *fakeInner) Name() string                        { return "fake" }
func (f *fakeInner) HealthCheck(ctx context.Context) bool { return f.healthy }
func (f *fakeInner) ListModels(ctx context.Context) ([]model.Info, error) {
	return []model.Info{{ID: "m1"}, {ID: "m2"}}, nil
}
func (f *fakeInner) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestSmartBackend(inner *fakeInner) *SmartBackend {
	return New(inner, Options{
		CircuitBreaker: circuit.New(3, time.Minute),
		ResponseCache:  cache.New(time.Minute, 10),
		ModelListCache: cache.NewModelListCache(time.Minute),
		Metrics:        metrics.New(),
	})
}

func TestSmartBackend_CacheHitHasZeroLatency(t *testing.T) {
	inner := &fakeInner{resp: &model.Response{Model: "m1", Content: "hi", Usage: &model.Usage{TotalTokens: 2}}}
	sb := newTestSmartBackend(inner)

	if _, err := sb.Query(context.Background(), "m1", "p", model.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := sb.Query(context.Background(), "m1", "p", model.Options{})
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if second.LatencyMs != 0 {
		t.Errorf("expected LatencyMs 0 on cache hit, got %d", second.LatencyMs)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner backend called exactly once, got %d", inner.calls)
	}
}

func TestSmartBackend_FreshQueryPassesThroughBackendLatency(t *testing.T) {
	inner := &fakeInner{resp: &model.Response{Model: "m1", Content: "hi", LatencyMs: 400, Usage: &model.Usage{TotalTokens: 2}}}
	sb := newTestSmartBackend(inner)

	resp, err := sb.Query(context.Background(), "m1", "p", model.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.LatencyMs != 400 {
		t.Errorf("expected SmartBackend to pass through the backend's own reported LatencyMs of 400, got %d", resp.LatencyMs)
	}
}

func TestSmartBackend_CircuitOpensAfterThreshold(t *testing.T) {
	inner := &fakeInner{err: errors.New("boom")}
	sb := New(inner, Options{
		CircuitBreaker: circuit.New(2, time.Minute),
		ResponseCache:  cache.New(time.Minute, 10),
		Metrics:        metrics.New(),
	})

	for i := 0; i < 2; i++ {
		if _, err := sb.Query(context.Background(), "m1", "p", model.Options{}); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	_, err := sb.Query(context.Background(), "m1", "p", model.Options{})
	if err == nil {
		t.Fatal("expected UnavailableError once circuit is open")
	}
	if inner.calls != 2 {
		t.Errorf("expected inner backend not called once circuit is open, got %d calls", inner.calls)
	}
}

func TestSmartBackend_ListModelsFiltersOpenCircuits(t *testing.T) {
	inner := &fakeInner{}
	sb := newTestSmartBackend(inner)

	sb.breaker.RecordFailure("m1")
	sb.breaker.RecordFailure("m1")
	sb.breaker.RecordFailure("m1")

	models, err := sb.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range models {
		if m.ID == "m1" {
			t.Error("expected m1 filtered out while its circuit is open")
		}
	}
}

func TestSmartBackend_FallbackOnFailure(t *testing.T) {
	primary := errors.New("primary down")
	calls := map[string]int{}

	sb := New(&routingFakeInner{calls: calls, primaryErr: primary}, Options{
		CircuitBreaker: circuit.New(3, time.Minute),
		ResponseCache:  cache.New(time.Minute, 10),
		Metrics:        metrics.New(),
		FallbackChains: map[string][]string{"primary": {"secondary"}},
	})

	resp, err := sb.Query(context.Background(), "primary", "p", model.Options{})
	if err != nil {
		t.Fatalf("expected fallback success, got error: %v", err)
	}
	if resp.FallbackFrom != "primary" {
		t.Errorf("expected FallbackFrom=primary, got %q", resp.FallbackFrom)
	}
	if calls["secondary"] != 1 {
		t.Errorf("expected secondary called once, got %d", calls["secondary"])
	}
}

type routingFakeInner struct {
	calls      map[string]int
	primaryErr error
}

func (f *routingFakeInner) Name() string                        { return "fake" }
func (f *routingFakeInner) HealthCheck(ctx context.Context) bool { return true }
func (f *routingFakeInner) ListModels(ctx context.Context) ([]model.Info, error) {
	return nil, nil
}
func (f *routingFakeInner) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	f.calls[modelID]++
	if modelID == "primary" {
		return nil, f.primaryErr
	}
	return &model.Response{Model: modelID, Content: "ok"}, nil
}
