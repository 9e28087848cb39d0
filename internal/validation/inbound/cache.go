package inbound

import "sync"

// idCache is a bounded set of message ids with insertion-ordered eviction:
// once capacity is reached, adding a new id drops the oldest one. Lookups do
// not refresh position (FIFO, not LRU).
type idCache struct {
	mu       sync.Mutex
	capacity int
	present  map[string]struct{}
	order    []string
}

func newIDCache(capacity int) *idCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &idCache{
		capacity: capacity,
		present:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is in the cache.
func (c *idCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.present[id]
	return ok
}

// Add inserts id, evicting the oldest entries if over capacity. Adding an id
// already present is a no-op and does not change its eviction position.
func (c *idCache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.present[id]; ok {
		return
	}

	c.present[id] = struct{}{}
	c.order = append(c.order, id)

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.present, oldest)
	}
}

// Len returns the number of cached ids.
func (c *idCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.present)
}
