package cloud

import (
	"sync"
	"time"
)

// FlavorCache caches flavor lookups to reduce API calls
type FlavorCache struct {
	data  map[string]*cacheEntry
	ttl   time.Duration
	mutex sync.RWMutex
}

type cacheEntry struct {
	flavor    *Flavor
	expiresAt time.Time
}

func NewFlavorCache(ttl time.Duration) *FlavorCache {
	return &FlavorCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}
}

func (c *FlavorCache) Get(id string) *Flavor {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[id]
	if !exists {
		return nil
	}

	if time.Now().After(entry.expiresAt) {
		return nil
	}

	return entry.flavor
}

func (c *FlavorCache) Set(id string, flavor *Flavor) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[id] = &cacheEntry{
		flavor:    flavor,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *FlavorCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
}
