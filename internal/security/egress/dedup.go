package egress

import "sync"

const DefaultDedupCapacity = 100

// DedupCache remembers recently allowed requests. It is cleared wholesale once
// it grows past capacity.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
}

func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity+1),
	}
}

// Seen reports whether key was already present, and records it if not.
func (c *DedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[key]; ok {
		return true
	}
	c.keys[key] = struct{}{}
	if len(c.keys) > c.capacity {
		c.keys = make(map[string]struct{}, c.capacity+1)
	}
	return false
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *DedupCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = make(map[string]struct{}, c.capacity+1)
}

func dedupKey(method, rawURL string) string {
	return method + ":" + rawURL
}
