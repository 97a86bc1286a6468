// Package backend declares the Backend contract (spec.md §4.1) that every
// vendor-specific connector satisfies. Backends perform no cross-cutting
// policy themselves — no caching, no circuit breaking, no global metrics —
// that is the job of the layers above (MultiBackend, SmartBackend).
package backend

import (
	"context"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// Backend is one family of models reachable through a uniform contract.
type Backend interface {
	// Name returns the provider_key this backend registers under.
	Name() string

	// HealthCheck fails closed: any connectivity or auth error returns false.
	HealthCheck(ctx context.Context) bool

	// ListModels returns the catalog this backend currently serves. May be empty.
	ListModels(ctx context.Context) ([]model.Info, error)

	// Query performs one model call. Measures and reports LatencyMs as wall
	// time from send to received body.
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
}
