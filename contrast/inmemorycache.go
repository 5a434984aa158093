package contrast

import (
	"sync"
	"time"
)

// InMemoryScreensCache is a simple in-memory implementation of ScreensCache.
// Thread-safe for concurrent access.
type InMemoryScreensCache struct {
	screens  []*Screen
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryScreensCache creates a new in-memory screens cache
func NewInMemoryScreensCache(config CacheConfig) *InMemoryScreensCache {
	return &InMemoryScreensCache{
		config:  config,
		isValid: false,
	}
}

// Get retrieves cached screens. Returns nil if the cache is invalid or
// expired.
func (c *InMemoryScreensCache) Get() []*Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}

	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Return copy to prevent external modifications
	screensCopy := make([]*Screen, len(c.screens))
	copy(screensCopy, c.screens)
	return screensCopy
}

// Set stores screens in cache
func (c *InMemoryScreensCache) Set(screens []*Screen) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store copy to prevent external modifications
	c.screens = make([]*Screen, len(screens))
	copy(c.screens, screens)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryScreensCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.screens = nil
}

// IsValid returns true if cache contains valid data
func (c *InMemoryScreensCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}

	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}

	return true
}
