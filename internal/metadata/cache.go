package metadata

import (
	"sync"
	"time"

	"github.com/tonearm/tonearm/internal/music"
)

// Cache provides in-memory caching with TTL for catalog responses,
// keeping repeat lookups away from the rate limiter.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]cacheItem
	ttl      time.Duration
	maxItems int
}

type cacheItem struct {
	value     any
	expiresAt time.Time
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	TTL      time.Duration
	MaxItems int
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:      15 * time.Minute,
		MaxItems: 1000,
	}
}

// NewCache creates a new cache with the given configuration.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 1000
	}

	c := &Cache{
		items:    make(map[string]cacheItem),
		ttl:      cfg.TTL,
		maxItems: cfg.MaxItems,
	}

	go c.cleanup()

	return c
}

// Get retrieves an item from the cache.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

// Set stores an item in the cache.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = cacheItem{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes an item from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of items in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetReleases retrieves a cached search result list.
func (c *Cache) GetReleases(key string) ([]music.MetadataRelease, bool) {
	val, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	releases, ok := val.([]music.MetadataRelease)
	return releases, ok
}

// GetRelease retrieves a cached single release.
func (c *Cache) GetRelease(key string) (music.MetadataRelease, bool) {
	val, ok := c.Get(key)
	if !ok {
		return music.MetadataRelease{}, false
	}
	release, ok := val.(music.MetadataRelease)
	return release, ok
}

// evictOldest removes expired items and, if the cache is still full,
// the 10% of entries closest to expiry. Callers must hold the lock.
func (c *Cache) evictOldest() {
	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}

	if len(c.items) >= c.maxItems {
		toRemove := c.maxItems / 10
		if toRemove < 1 {
			toRemove = 1
		}

		var oldest []string
		var oldestTimes []time.Time

		for key, item := range c.items {
			if len(oldest) < toRemove {
				oldest = append(oldest, key)
				oldestTimes = append(oldestTimes, item.expiresAt)
			} else {
				for i, t := range oldestTimes {
					if item.expiresAt.Before(t) {
						oldest[i] = key
						oldestTimes[i] = item.expiresAt
						break
					}
				}
			}
		}

		for _, key := range oldest {
			delete(c.items, key)
		}
	}
}

// cleanup periodically removes expired items.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}
