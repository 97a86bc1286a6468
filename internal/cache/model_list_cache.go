package cache

import (
	"sync"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// ModelListCache is a single-slot, short-TTL memoization of the merged
// model catalog (spec.md §4.6).
type ModelListCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	models     []model.Info
	insertedAt time.Time
	has        bool
}

// NewModelListCache creates a ModelListCache. ttl defaults to 30s when
// given as zero.
func NewModelListCache(ttl time.Duration) *ModelListCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ModelListCache{ttl: ttl}
}

// Get returns the cached catalog if still fresh.
func (c *ModelListCache) Get() ([]model.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.has || time.Since(c.insertedAt) > c.ttl {
		return nil, false
	}
	return c.models, true
}

// Set replaces the cached catalog.
func (c *ModelListCache) Set(models []model.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = models
	c.insertedAt = time.Now()
	c.has = true
}
