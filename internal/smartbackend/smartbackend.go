// Package smartbackend implements the SmartBackend orchestrator of
// spec.md §4.8, the composition point that wraps a CircuitBreaker, a
// ResponseCache, a ModelListCache, and a Metrics instance around one inner
// backend.Backend (a MultiBackend in production).
//
// Grounded on the teacher's internal/gateway.Handler, which composes its
// HealthTracker (circuit), cache middleware, and telemetry around a single
// router.Registry call the same shape this package composes around
// MultiBackend.Query.
package smartbackend

import (
	"context"
	"log/slog"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/backend"
	"github.com/JustHereToHelp/HydraMCP/internal/cache"
	"github.com/JustHereToHelp/HydraMCP/internal/circuit"
	"github.com/JustHereToHelp/HydraMCP/internal/errs"
	"github.com/JustHereToHelp/HydraMCP/internal/metrics"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// maxFallbackDepth bounds fallback-chain recursion per spec.md §9's
// "hard cap of 2" decision on the source's ambiguous fallback-depth rule.
const maxFallbackDepth = 2

// Options configures the independent feature flags spec.md §4.8 requires:
// cache and circuit breaker can each be disabled without affecting the
// other.
type Options struct {
	CircuitBreaker *circuit.Breaker
	ResponseCache  *cache.ResponseCache
	ModelListCache *cache.ModelListCache
	Metrics        *metrics.Metrics

	DisableCache          bool
	DisableCircuitBreaker bool

	// FallbackChains maps a primary model ID to an ordered list of
	// alternative model IDs tried on any failure of the primary,
	// per spec.md §4.10.
	FallbackChains map[string][]string

	ProviderOf func(modelID string) string

	// Logger receives the structured per-call lines SPEC_FULL.md §A.1
	// commits to (backend call, cache hit/miss, circuit transition), each
	// tagged with model/provider/latency_ms. Defaults to slog.Default().
	Logger *slog.Logger
}

// SmartBackend is the singleton orchestrator owning every in-memory
// resilience structure for the process lifetime.
type SmartBackend struct {
	inner     backend.Backend
	breaker   *circuit.Breaker
	cache     *cache.ResponseCache
	listCache *cache.ModelListCache
	metrics   *metrics.Metrics

	disableCache   bool
	disableBreaker bool
	fallbackChains map[string][]string
	providerOf     func(modelID string) string
	logger         *slog.Logger
}

// New wraps inner (typically a MultiBackend) with the resilience stack.
func New(inner backend.Backend, opts Options) *SmartBackend {
	providerOf := opts.ProviderOf
	if providerOf == nil {
		providerOf = func(string) string { return "" }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SmartBackend{
		inner:          inner,
		breaker:        opts.CircuitBreaker,
		cache:          opts.ResponseCache,
		listCache:      opts.ModelListCache,
		metrics:        opts.Metrics,
		disableCache:   opts.DisableCache,
		disableBreaker: opts.DisableCircuitBreaker,
		fallbackChains: opts.FallbackChains,
		providerOf:     providerOf,
		logger:         logger,
	}
}

func (s *SmartBackend) Name() string { return "smart" }

func (s *SmartBackend) HealthCheck(ctx context.Context) bool {
	return s.inner.HealthCheck(ctx)
}

// ListModels reads the merged catalog (cached or fresh) and always filters
// out models whose circuit is currently open, per spec.md §4.6.
func (s *SmartBackend) ListModels(ctx context.Context) ([]model.Info, error) {
	var models []model.Info
	if !s.disableCache && s.listCache != nil {
		if cached, ok := s.listCache.Get(); ok {
			models = cached
		}
	}
	if models == nil {
		fresh, err := s.inner.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		models = fresh
		if !s.disableCache && s.listCache != nil {
			s.listCache.Set(fresh)
		}
	}

	if s.disableBreaker || s.breaker == nil {
		return models, nil
	}

	filtered := make([]model.Info, 0, len(models))
	for _, m := range models {
		if s.breaker.IsOpen(m.ID) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

// Query runs the five-step algorithm of spec.md §4.8, with an optional
// bounded fallback-chain attempt on failure.
func (s *SmartBackend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	return s.query(ctx, modelID, prompt, opts, 0)
}

func (s *SmartBackend) query(ctx context.Context, modelID, prompt string, opts model.Options, fallbackDepth int) (*model.Response, error) {
	provider := s.providerOf(modelID)

	// Step 1: circuit gate.
	if !s.disableBreaker && s.breaker != nil && s.breaker.IsOpen(modelID) {
		if s.metrics != nil {
			s.metrics.RecordFailure(modelID, provider, 0)
		}
		s.logger.Warn("circuit open, query rejected", "model", modelID, "provider", provider)
		err := &errs.UnavailableError{Model: modelID, CooldownRemaining: s.breaker.CooldownRemaining(modelID)}
		if resp, fbErr := s.attemptFallback(ctx, modelID, prompt, opts, fallbackDepth); fbErr == nil {
			return resp, nil
		}
		return nil, err
	}

	// Step 2: cache lookup.
	var cacheKey string
	if !s.disableCache && s.cache != nil {
		cacheKey = cache.Key(modelID, prompt, opts)
		if cached, ok := s.cache.Get(cacheKey); ok {
			cached.LatencyMs = 0
			if s.metrics != nil {
				s.metrics.RecordCacheHit(modelID, provider, totalTokens(cached.Usage))
			}
			s.logger.Info("cache hit", "model", modelID, "provider", provider, "latency_ms", 0)
			return &cached, nil
		}
		s.logger.Debug("cache miss", "model", modelID, "provider", provider)
	}

	// Step 3: dispatch, timed.
	start := time.Now()
	resp, err := s.inner.Query(ctx, modelID, prompt, opts)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		// Step 5: on failure.
		if !s.disableBreaker && s.breaker != nil {
			s.breaker.RecordFailure(modelID)
		}
		if s.metrics != nil {
			s.metrics.RecordFailure(modelID, provider, elapsed)
		}
		s.logger.Warn("backend query failed", "model", modelID, "provider", provider, "latency_ms", elapsed, "error", err)
		if fbResp, fbErr := s.attemptFallback(ctx, modelID, prompt, opts, fallbackDepth); fbErr == nil {
			return fbResp, nil
		}
		return nil, err
	}

	// Step 4: on success. resp.LatencyMs is left as the backend's own
	// self-reported value (spec.md §4.1); elapsed is only used for
	// metrics, since a backend's own latency_ms can legitimately be 0
	// on a sub-millisecond dispatch and must not be confused with a
	// cache hit.
	if !s.disableBreaker && s.breaker != nil {
		s.breaker.RecordSuccess(modelID)
	}
	if s.metrics != nil {
		s.metrics.RecordSuccess(modelID, provider, elapsed, totalTokens(resp.Usage))
	}
	s.logger.Info("backend query succeeded", "model", modelID, "provider", provider, "latency_ms", resp.LatencyMs)
	if !s.disableCache && s.cache != nil {
		s.cache.Set(cacheKey, *resp)
	}
	return resp, nil
}

// attemptFallback tries the first configured alternative for modelID, if
// any, bounded by maxFallbackDepth. The returned response's FallbackFrom
// field records the model that actually failed.
func (s *SmartBackend) attemptFallback(ctx context.Context, modelID, prompt string, opts model.Options, depth int) (*model.Response, error) {
	if depth >= maxFallbackDepth || s.fallbackChains == nil {
		return nil, errNoFallback
	}
	chain, ok := s.fallbackChains[modelID]
	if !ok || len(chain) == 0 {
		return nil, errNoFallback
	}
	resp, err := s.query(ctx, chain[0], prompt, opts, depth+1)
	if err != nil {
		return nil, err
	}
	resp.FallbackFrom = modelID
	return resp, nil
}

var errNoFallback = &errs.RoutingError{Model: "", Tried: nil}

func totalTokens(u *model.Usage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
