// Package multibackend implements the MultiBackend routing layer of
// spec.md §4.3: a registry of provider_key -> Backend that splits prefixed
// model IDs for exclusive dispatch, and tries bare IDs against every
// registered backend in registration order.
//
// Grounded on the teacher's internal/router.Registry (name -> adapter map
// guarded by sync.RWMutex) and internal/router.HealthTracker's concurrent
// per-provider probing idiom, generalized from a single-adapter lookup to
// the spec's prefix-split-or-iterate routing rule.
package multibackend

import (
	"context"
	"strings"
	"sync"

	"github.com/JustHereToHelp/HydraMCP/internal/backend"
	"github.com/JustHereToHelp/HydraMCP/internal/errs"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// MultiBackend satisfies backend.Backend over a fixed-order registry of
// leaf backends. Registration order is the tie-break for bare model IDs,
// so the entry point must register backends in the order the spec
// prescribes (native API backends first, then subscription, then local).
type MultiBackend struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]backend.Backend
}

// New creates an empty MultiBackend. Register backends with Register in
// the order bare-ID routing should try them.
func New() *MultiBackend {
	return &MultiBackend{
		backends: make(map[string]backend.Backend),
	}
}

// Register adds b under its own Name(), appending to the registration
// order used for bare-ID routing. Registering the same name twice replaces
// the backend but keeps its original position in the order.
func (mb *MultiBackend) Register(b backend.Backend) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	name := b.Name()
	if _, exists := mb.backends[name]; !exists {
		mb.order = append(mb.order, name)
	}
	mb.backends[name] = b
}

func (mb *MultiBackend) Name() string { return "multi" }

// HealthCheck probes every registered backend concurrently and reports
// true iff any one of them is healthy.
func (mb *MultiBackend) HealthCheck(ctx context.Context) bool {
	mb.mu.RLock()
	backends := make([]backend.Backend, 0, len(mb.order))
	for _, name := range mb.order {
		backends = append(backends, mb.backends[name])
	}
	mb.mu.RUnlock()

	if len(backends) == 0 {
		return false
	}

	results := make([]bool, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b backend.Backend) {
			defer wg.Done()
			results[i] = b.HealthCheck(ctx)
		}(i, b)
	}
	wg.Wait()

	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

// ListModels invokes every registered backend concurrently. A backend's
// failure only omits its entries; it is never fatal to the call. Every
// returned ID is prefixed with "<provider_key>/".
func (mb *MultiBackend) ListModels(ctx context.Context) ([]model.Info, error) {
	mb.mu.RLock()
	backends := make([]backend.Backend, 0, len(mb.order))
	for _, name := range mb.order {
		backends = append(backends, mb.backends[name])
	}
	mb.mu.RUnlock()

	type result struct {
		models []model.Info
	}
	results := make([]result, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b backend.Backend) {
			defer wg.Done()
			models, err := b.ListModels(ctx)
			if err != nil {
				return
			}
			results[i] = result{models: models}
		}(i, b)
	}
	wg.Wait()

	var out []model.Info
	for i, b := range backends {
		for _, m := range results[i].models {
			m.ID = b.Name() + "/" + m.ID
			m.ProviderKey = b.Name()
			out = append(out, m)
		}
	}
	return out, nil
}

// Query splits a provider-prefixed model ID ("provider_key/id") for
// exclusive dispatch to that backend; a bare ID is tried against each
// registered backend in registration order, first success wins.
func (mb *MultiBackend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	if provider, inner, ok := splitPrefixed(modelID); ok {
		mb.mu.RLock()
		b, found := mb.backends[provider]
		mb.mu.RUnlock()
		if !found {
			return nil, &errs.RoutingError{Model: modelID, Tried: []string{provider}}
		}
		return b.Query(ctx, inner, prompt, opts)
	}

	mb.mu.RLock()
	backends := make([]backend.Backend, 0, len(mb.order))
	for _, name := range mb.order {
		backends = append(backends, mb.backends[name])
	}
	mb.mu.RUnlock()

	var tried []string
	var lastErr error
	for _, b := range backends {
		resp, err := b.Query(ctx, modelID, prompt, opts)
		if err == nil {
			return resp, nil
		}
		tried = append(tried, b.Name())
		lastErr = err
	}
	if len(backends) == 0 {
		return nil, &errs.RoutingError{Model: modelID}
	}
	return nil, &errs.RoutingError{Model: modelID, Tried: tried, Cause: lastErr}
}

// splitPrefixed reports whether modelID contains "/" at a non-zero
// position, splitting it into provider_key and the inner ID.
func splitPrefixed(modelID string) (provider, inner string, ok bool) {
	idx := strings.IndexByte(modelID, '/')
	if idx <= 0 {
		return "", "", false
	}
	return modelID[:idx], modelID[idx+1:], true
}
