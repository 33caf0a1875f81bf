package client

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	data      []byte
	fetchedAt time.Time
}

// Cache holds raw response bodies by query key. Callers decode on every read, so cached
// values are never shared. Each entity carries a generation that Invalidate bumps, so a
// response fetched before a mutation is never stored after it.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]cacheEntry
	generations map[string]uint64
	now         func() time.Time
}

func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}

	return &Cache{
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]uint64),
		now:         now,
	}
}

// Get returns the entry stored under key if it is younger than staleTime.
func (c *Cache) Get(key string, staleTime time.Duration) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.fetchedAt) >= staleTime {
		return nil, false
	}

	return entry.data, true
}

func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{data: data, fetchedAt: c.now()}
}

// Generation returns the current generation of the entity key belongs to.
func (c *Cache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generations[entityOf(key)]
}

// SetIfCurrent stores data under key only if the entity was not invalidated since
// generation was read.
func (c *Cache) SetIfCurrent(key string, data []byte, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[entityOf(key)] != generation {
		return false
	}

	c.entries[key] = cacheEntry{data: data, fetchedAt: c.now()}

	return true
}

// Invalidate drops every entry of the given entities.
func (c *Cache) Invalidate(entities ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entity := range entities {
		c.generations[entity]++
	}

	for key := range c.entries {
		for _, entity := range entities {
			if strings.HasPrefix(key, entity+"/") {
				delete(c.entries, key)

				break
			}
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func entityOf(key string) string {
	entity, _, _ := strings.Cut(key, "/")

	return entity
}
