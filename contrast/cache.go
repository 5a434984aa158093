package contrast

import "time"

// ScreensCache provides an abstraction for caching a project's active
// screens. This allows swapping between in-memory, Redis, or other caching
// implementations.
type ScreensCache interface {
	// Get retrieves cached screens, returns nil if cache miss or expired
	Get() []*Screen

	// Set stores screens in cache
	Set(screens []*Screen)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for screen caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
