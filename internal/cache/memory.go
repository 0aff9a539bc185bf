package cache

import (
	"sync"
	"time"

	"soundstorm/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      any
	Expiration time.Time
}

// expiredAt checks if the cache entry has expired at the given instant
func (e *CacheEntry) expiredAt(now time.Time) bool {
	return now.After(e.Expiration)
}

// MemoryCache implements a simple in-memory TTL cache
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new memory cache and starts its cleanup loop.
// Call Close to stop the loop.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	go cache.cleanupExpired(cleanupInterval(ttl))

	return cache
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: c.now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.expiredAt(c.now()) {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup loop. The cache stays readable.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// purge drops every expired entry
func (c *MemoryCache) purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, entry := range c.items {
		if entry.expiredAt(now) {
			delete(c.items, key)
		}
	}
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.stop:
			return
		}
	}
}

// TrackCache caches catalog query results
type TrackCache struct {
	*MemoryCache
}

// NewTrackCache creates a new track cache with the given time-to-live
func NewTrackCache(ttl time.Duration) *TrackCache {
	return &TrackCache{
		MemoryCache: NewMemoryCache(ttl),
	}
}

// SetTracks caches a slice of tracks
func (tc *TrackCache) SetTracks(key string, tracks []models.Track) {
	tc.Set(key, tracks)
}

// GetTracks retrieves cached tracks
func (tc *TrackCache) GetTracks(key string) ([]models.Track, bool) {
	value, exists := tc.Get(key)
	if !exists {
		return nil, false
	}

	tracks, ok := value.([]models.Track)
	return tracks, ok
}
