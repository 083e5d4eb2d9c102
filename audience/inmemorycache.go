package audience

import (
	"sync"
	"time"
)

// InMemoryAudiencesCache is an AudiencesCache held in process memory.
// Safe for concurrent use.
type InMemoryAudiencesCache struct {
	audiences []*Audience
	cachedAt  time.Time
	config    CacheConfig
	valid     bool
	mu        sync.RWMutex
}

func NewInMemoryAudiencesCache(config CacheConfig) *InMemoryAudiencesCache {
	return &InMemoryAudiencesCache{config: config}
}

func (c *InMemoryAudiencesCache) Get() []*Audience {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	// copy so callers cannot reorder the cached slice
	out := make([]*Audience, len(c.audiences))
	copy(out, c.audiences)
	return out
}

func (c *InMemoryAudiencesCache) Set(audiences []*Audience) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.audiences = make([]*Audience, len(audiences))
	copy(c.audiences, audiences)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemoryAudiencesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.audiences = nil
}

func (c *InMemoryAudiencesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

// fresh must be called with mu held.
func (c *InMemoryAudiencesCache) fresh() bool {
	if !c.valid {
		return false
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
