// Package cache implements the ResponseCache and ModelListCache of
// spec.md §4.5-4.6: content-addressed, LRU-with-TTL memoization of
// completed queries, and a short-TTL single-slot memoization of the
// merged model catalog.
//
// Grounded on the teacher's sync.RWMutex-guarded lazy map idiom
// (internal/router.HealthTracker's double-checked-lock GetBreaker), with
// an LRU ring built from container/list the same way a bounded cache
// would sit next to it in that package.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type entry struct {
	key        string
	response   model.Response
	insertedAt time.Time
}

// ResponseCache is an LRU, TTL-bounded memoization of completed queries,
// keyed by Key(model, prompt, options).
type ResponseCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	ll         *list.List // front = most recently used
	index      map[string]*list.Element
}

// New creates a ResponseCache. ttl defaults to 15 minutes, maxEntries to
// 100, when given as zero.
func New(ttl time.Duration, maxEntries int) *ResponseCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &ResponseCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		ll:         list.New(),
		index:      make(map[string]*list.Element),
	}
}

// Get returns the cached response for key and promotes it to
// most-recently-used, or reports a miss if absent or expired (deleting
// the stale entry as a side effect).
func (c *ResponseCache) Get(key string) (model.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return model.Response{}, false
	}
	e := el.Value.(*entry)
	if time.Since(e.insertedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.index, key)
		return model.Response{}, false
	}
	c.ll.MoveToFront(el)
	return e.response, true
}

// Set stores resp under key, evicting the least-recently-used entry first
// if the cache is at capacity.
func (c *ResponseCache) Set(key string, resp model.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*entry).response = resp
		el.Value.(*entry).insertedAt = time.Now()
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxEntries {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.index, back.Value.(*entry).key)
		}
	}

	el := c.ll.PushFront(&entry{key: key, response: resp, insertedAt: time.Now()})
	c.index[key] = el
}

// Len reports the current entry count, for tests and diagnostics.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
