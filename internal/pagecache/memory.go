package pagecache

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

type memoryEntry struct {
	doc       account.Document
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache used when no Redis address is
// configured. It is only coherent within a single linkhubd instance.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache. ttl <= 0 defaults to one minute.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, slug string) (*account.Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[slug]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	doc := e.doc.Clone()
	return &doc, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, slug string, doc account.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[slug] = &memoryEntry{doc: doc.Clone(), expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, slugs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range slugs {
		delete(c.entries, s)
	}
	return nil
}

// Evict removes all expired entries and returns how many were removed.
func (c *MemoryCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
