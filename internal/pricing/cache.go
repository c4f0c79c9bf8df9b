package pricing

import "sync"

// DefaultCacheSize bounds the day cache when no size is configured.
const DefaultCacheSize = 4096

type cacheKey struct {
	asset string
	day   string
}

// DayCache memoizes one EUR price per (asset, calendar day). Entries never
// expire within a process run; the cache is not durable across runs.
type DayCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]float64
	max     int
}

// NewDayCache creates a cache holding at most max entries.
func NewDayCache(max int) *DayCache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &DayCache{
		entries: make(map[cacheKey]float64),
		max:     max,
	}
}

// Get returns the cached price for (asset, day).
func (c *DayCache) Get(asset, day string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.entries[cacheKey{asset, day}]
	return price, ok
}

// Set stores the price for (asset, day). When the cache is full an
// arbitrary entry is evicted first; day prices are cheap to refetch.
func (c *DayCache) Set(asset, day string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		for key := range c.entries {
			delete(c.entries, key)
			break
		}
	}
	c.entries[cacheKey{asset, day}] = price
}

// Len returns the number of cached entries.
func (c *DayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached entry.
func (c *DayCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]float64)
}
