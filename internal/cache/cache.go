// Package cache keeps combined search results keyed by query fingerprint
// under a freshness TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/stats"
	"github.com/sirupsen/logrus"
)

// FetchFunc produces a fresh combined result for a query. In production this
// is the fan-out executor's Run.
type FetchFunc func(ctx context.Context, query models.Query) (*fanout.Result, error)

// Cache maps query fingerprints to cached combined results. The guarding
// mutex is held only for map access, never across a fetch, so concurrent
// queries for different fingerprints never block each other. Two concurrent
// misses for the same fingerprint may both fetch; the last writer wins.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	fetch   FetchFunc
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache over the given fetch function. A zero ttl disables
// caching entirely (every Get misses).
func New(fetch FetchFunc, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*models.CacheEntry),
		fetch:   fetch,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get looks up the cached entry for the query. It reports a hit only when an
// entry exists and is still within the TTL.
func (c *Cache) Get(query models.Query) (*models.CacheEntry, bool) {
	fingerprint := query.Fingerprint()

	c.mu.Lock()
	entry, ok := c.entries[fingerprint]
	c.mu.Unlock()

	if !ok || c.now().Sub(entry.FetchedAt) >= c.ttl {
		return nil, false
	}
	return entry, true
}

// GetOrFetch returns the cached entry when fresh, otherwise runs the fetch
// function, stores the outcome and returns it. The fan-out result is
// returned alongside so callers can inspect the per-platform error map of a
// fresh fetch; it is nil on a cache hit. A failed fetch is not cached.
func (c *Cache) GetOrFetch(ctx context.Context, query models.Query) (*models.CacheEntry, *fanout.Result, error) {
	if entry, ok := c.Get(query); ok {
		logrus.Debugf("Cache hit for fingerprint %.12s", entry.Fingerprint)
		return entry, nil, nil
	}

	// The fetch runs outside the lock.
	result, err := c.fetch(ctx, query)
	if err != nil {
		return nil, result, err
	}

	entry := &models.CacheEntry{
		Fingerprint:    query.Fingerprint(),
		Mentions:       result.Mentions,
		PlatformCounts: result.PlatformCounts,
		Stats:          stats.Compute(result.Mentions),
		FetchedAt:      c.now(),
	}

	c.mu.Lock()
	c.entries[entry.Fingerprint] = entry
	c.mu.Unlock()

	logrus.Debugf("Cached %d mentions for fingerprint %.12s", len(entry.Mentions), entry.Fingerprint)
	return entry, result, nil
}

// Invalidate drops the entry for one query, if present.
func (c *Cache) Invalidate(query models.Query) {
	c.mu.Lock()
	delete(c.entries, query.Fingerprint())
	c.mu.Unlock()
}

// Clear drops every entry. A fetch in flight when Clear is called still
// stores its result afterwards; that is accepted last-writer-wins behavior.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*models.CacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
