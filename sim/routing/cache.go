package routing

import "sync"

// routeCache is a bounded write-through cache with FIFO eviction.
// Safe for concurrent readers; writes are serialized by the mutex, which
// gives single-writer-per-key semantics.
type routeCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]RouteResult
	order    []string // insertion order for FIFO eviction

	hits   uint64
	misses uint64
}

func newRouteCache(capacity int) *routeCache {
	if capacity < 1 {
		capacity = 1
	}
	return &routeCache{
		capacity: capacity,
		entries:  make(map[string]RouteResult),
	}
}

func (c *routeCache) get(key string) (RouteResult, bool) {
	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return res, ok
}

func (c *routeCache) put(key string, res RouteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = res
		return
	}
	if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = res
	c.order = append(c.order, key)
}

func (c *routeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]RouteResult)
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// CacheStats reports cache effectiveness counters. Counters are monotonic
// until the cache is cleared.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (c *routeCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}
