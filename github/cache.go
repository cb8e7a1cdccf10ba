package github

import "sync"

type cacheKey struct {
	owner, repo, path string
}

func (k cacheKey) String() string { return k.owner + "/" + k.repo + ":" + k.path }

// cacheEntry is either content or a definitive not-found marker.
type cacheEntry struct {
	content string
	found   bool
}

// contentCache is write-once per key: the first stored entry wins and is
// never replaced, so an absence marker cannot turn into content later.
type contentCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

func newContentCache() *contentCache {
	return &contentCache{entries: make(map[cacheKey]cacheEntry)}
}

func (c *contentCache) get(k cacheKey) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	return e, ok
}

// store inserts e unless k is already present, and returns the entry in effect.
func (c *contentCache) store(k cacheKey, e cacheEntry) cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok {
		return existing
	}
	c.entries[k] = e
	return e
}

func (c *contentCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
