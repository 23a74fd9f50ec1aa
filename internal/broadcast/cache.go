package broadcast

import (
	"sync"
	"time"

	"fleetwatch/internal/resources"
)

// CachedPayload is the last validated broadcast for one resource.
// Entries are only ever overwritten by newer validated payloads,
// never invalidated, so a failed fetch can always fall back to the
// last good state.
type CachedPayload struct {
	Message  []byte
	StoredAt time.Time
}

// Cache holds the last-good payload per resource type
type Cache struct {
	mu       sync.RWMutex
	payloads map[resources.ResourceType]CachedPayload
}

// NewCache creates an empty payload cache
func NewCache() *Cache {
	return &Cache{payloads: make(map[resources.ResourceType]CachedPayload)}
}

// Set overwrites the cached payload for a resource
func (c *Cache) Set(rt resources.ResourceType, message []byte) {
	c.mu.Lock()
	c.payloads[rt] = CachedPayload{Message: message, StoredAt: time.Now()}
	c.mu.Unlock()
}

// Get returns the cached payload for a resource, if one exists
func (c *Cache) Get(rt resources.ResourceType) (CachedPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.payloads[rt]
	return p, ok
}

// Each calls fn for every cached payload, used to seed new clients
func (c *Cache) Each(fn func(rt resources.ResourceType, p CachedPayload)) {
	c.mu.RLock()
	snapshot := make(map[resources.ResourceType]CachedPayload, len(c.payloads))
	for rt, p := range c.payloads {
		snapshot[rt] = p
	}
	c.mu.RUnlock()

	for rt, p := range snapshot {
		fn(rt, p)
	}
}

// Len returns the number of cached resources
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.payloads)
}
