package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// MemoryCache is the in-process page cache: a map guarded by an RWMutex.
// Entries have no TTL; staleness is bounded solely by write-triggered
// invalidation, which sweeps every key under the affected scope prefix.
type MemoryCache struct {
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]*types.CachedPage

	stats CacheStats
}

// CacheStats tracks cache effectiveness counters
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Evicted       int64 `json:"evicted"`
}

// NewMemoryCache creates an in-process page cache
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		logger:  log,
		entries: make(map[string]*types.CachedPage),
	}
}

// Get returns the cached page for the key, if present.
func (c *MemoryCache) Get(ctx context.Context, key types.CacheKey) (*types.CachedPage, bool, error) {
	c.mu.RLock()
	page, ok := c.entries[key.String()]
	c.mu.RUnlock()

	c.mu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()

	return page, ok, nil
}

// Put stores a page. Pages beyond the tracked page bound are never cached,
// which keeps the key space enumerable for invalidation.
func (c *MemoryCache) Put(ctx context.Context, key types.CacheKey, page *types.CachedPage) error {
	if key.Page > MaxTrackedPages || !types.IsAllowedPageSize(key.PageSize) {
		return nil
	}
	c.mu.Lock()
	c.entries[key.String()] = page
	c.mu.Unlock()
	return nil
}

// Invalidate removes every cached page for the (entity, caller, role)
// scope: all page numbers, all page sizes, all filter fingerprints. The
// prefix scan over the live key set is a complete sweep of the tracked
// key space by construction.
func (c *MemoryCache) Invalidate(ctx context.Context, entity types.EntityType, callerID string, role types.Role) error {
	prefix := types.ScopePrefix(entity, callerID, role)

	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			c.stats.Evicted++
		}
	}
	c.stats.Invalidations++
	c.mu.Unlock()

	c.logger.CacheEvent("invalidate", entity, callerID, nil)
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len returns the number of live entries. Test helper.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MaxTrackedPages bounds the page-number dimension of the cache key space.
// A page beyond this bound is served from the store and never cached, so
// the invalidation sweep provably covers everything that was cached.
const MaxTrackedPages = 10
