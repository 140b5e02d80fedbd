package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/config"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// RedisCache is the shared page cache for multi-replica deployments. Each
// scope keeps an index set of its live keys, so invalidation enumerates and
// deletes the scope's entire key space in one sweep regardless of which
// replica populated it.
//
// A scope whose sweep failed is marked bypassed: reads miss and writes skip
// it until a sweep succeeds, so a half-deleted key space can never serve
// pages stored before the write that triggered the sweep.
type RedisCache struct {
	client *redis.Client
	logger *logger.Logger

	mu       sync.Mutex
	bypassed map[string]struct{}
}

// NewRedisCache connects a Redis-backed page cache
func NewRedisCache(cfg *config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{
		client:   client,
		logger:   log,
		bypassed: make(map[string]struct{}),
	}, nil
}

const keyPrefix = "pages:"
const indexPrefix = "pageidx:"

func (c *RedisCache) isBypassed(scope string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bypassed[scope]
	return ok
}

func (c *RedisCache) setBypassed(scope string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.bypassed[scope] = struct{}{}
	} else {
		delete(c.bypassed, scope)
	}
}

// Get returns the cached page for the key, if present. A bypassed scope
// always misses.
func (c *RedisCache) Get(ctx context.Context, key types.CacheKey) (*types.CachedPage, bool, error) {
	if c.isBypassed(key.ScopePrefix()) {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, keyPrefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewCacheInconsistency("cache read failed", err)
	}

	var page types.CachedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false, types.NewCacheInconsistency("cache entry corrupt", err)
	}
	return &page, true, nil
}

// Put stores a page and records its key in the scope index. Pages beyond
// the tracked bound are never cached. A bypassed scope must complete its
// pending sweep before it accepts pages again.
func (c *RedisCache) Put(ctx context.Context, key types.CacheKey, page *types.CachedPage) error {
	if key.Page > MaxTrackedPages || !types.IsAllowedPageSize(key.PageSize) {
		return nil
	}

	scope := key.ScopePrefix()
	if c.isBypassed(scope) {
		if err := c.sweep(ctx, scope); err != nil {
			return err
		}
		c.setBypassed(scope, false)
	}

	raw, err := json.Marshal(page)
	if err != nil {
		return types.NewCacheInconsistency("cache entry marshal failed", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+key.String(), raw, 0)
	pipe.SAdd(ctx, indexPrefix+scope, key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewCacheInconsistency("cache write failed", err)
	}
	return nil
}

// Invalidate deletes every page recorded for the (entity, caller, role)
// scope plus the index itself. On failure the scope is marked bypassed, so
// subsequent reads miss instead of observing the surviving keys.
func (c *RedisCache) Invalidate(ctx context.Context, entity types.EntityType, callerID string, role types.Role) error {
	scope := types.ScopePrefix(entity, callerID, role)

	if err := c.sweep(ctx, scope); err != nil {
		c.setBypassed(scope, true)
		return err
	}
	c.setBypassed(scope, false)

	c.logger.CacheEvent("invalidate", entity, callerID, map[string]interface{}{"scope": scope})
	return nil
}

// sweep enumerates and deletes the scope's key space.
func (c *RedisCache) sweep(ctx context.Context, scope string) error {
	index := indexPrefix + scope

	members, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return types.NewCacheInconsistency("invalidation key enumeration failed", err)
	}

	pipe := c.client.TxPipeline()
	for _, m := range members {
		pipe.Del(ctx, keyPrefix+m)
	}
	pipe.Del(ctx, index)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewCacheInconsistency("invalidation sweep failed", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
