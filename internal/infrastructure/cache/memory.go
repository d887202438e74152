package cache

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/macrolens/productcheck/internal/domain"
)

// Defaults for the suggestion cache
const (
	DefaultTTL        = 5 * time.Minute
	DefaultCapacity   = 50
	DefaultEvictBatch = 10
)

// Entry is a memoized suggestion result for one normalized key
type Entry struct {
	Key              string
	Suggestions      []string
	ExternalProducts []domain.ExternalProduct
	CreatedAt        time.Time
}

// Config holds cache sizing and the clock used for TTL checks
type Config struct {
	TTL        time.Duration
	Capacity   int
	EvictBatch int
	// Now overrides time.Now, mostly for tests
	Now func() time.Time
}

// SuggestionCache is a thread-safe, time- and capacity-bounded memo of
// suggestion results. At most one entry exists per key. Expired entries are
// treated as misses on read; when an insert would exceed capacity the
// EvictBatch oldest entries are dropped first.
type SuggestionCache struct {
	data       map[string]Entry
	mutex      sync.RWMutex
	ttl        time.Duration
	capacity   int
	evictBatch int
	now        func() time.Time
}

// NewSuggestionCache creates a new suggestion cache, filling zero config values with defaults
func NewSuggestionCache(cfg Config) *SuggestionCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	batch := cfg.EvictBatch
	if batch <= 0 {
		batch = DefaultEvictBatch
	}
	if batch > capacity {
		batch = capacity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SuggestionCache{
		data:       make(map[string]Entry),
		ttl:        ttl,
		capacity:   capacity,
		evictBatch: batch,
		now:        now,
	}
}

// Get returns the entry for key if present and younger than the TTL
func (c *SuggestionCache) Get(key string) (Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[key]
	if !exists {
		return Entry{}, false
	}

	// Stale entries stay until evicted but are never returned
	if c.now().Sub(entry.CreatedAt) >= c.ttl {
		return Entry{}, false
	}

	return cloneEntry(entry), true
}

// Set stores entry under key, stamping CreatedAt with the current time.
// Replacing an existing key never triggers eviction.
func (c *SuggestionCache) Set(key string, entry Entry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data)+1 > c.capacity {
		c.evictOldestLocked(c.evictBatch)
	}

	entry = cloneEntry(entry)
	entry.Key = key
	entry.CreatedAt = c.now()
	c.data[key] = entry
}

// evictOldestLocked removes the n entries with the oldest CreatedAt.
// Caller must hold the write lock.
func (c *SuggestionCache) evictOldestLocked(n int) {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.data[keys[i]].CreatedAt.Before(c.data[keys[j]].CreatedAt)
	})

	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(c.data, k)
	}
}

// Size returns the current number of entries, including expired ones not yet evicted
func (c *SuggestionCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all entries
func (c *SuggestionCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]Entry)
}

func cloneEntry(e Entry) Entry {
	e.Suggestions = slices.Clone(e.Suggestions)
	e.ExternalProducts = slices.Clone(e.ExternalProducts)
	return e
}
