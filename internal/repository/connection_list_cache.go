package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketopshq/connecthub/internal/service"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	listCacheKeyPrefix = "connecthub:connections:agency:"
	listCacheTTL       = 5 * time.Minute
)

// redisConnectionListCache implements service.ConnectionListCache on Redis,
// shared across instances. Entries are short-lived; mutations invalidate
// eagerly and the TTL covers anything that slips through.
type redisConnectionListCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisConnectionListCache creates the shared listing cache.
func NewRedisConnectionListCache(rdb redis.UniversalClient) service.ConnectionListCache {
	return &redisConnectionListCache{rdb: rdb, ttl: listCacheTTL}
}

func (c *redisConnectionListCache) Get(ctx context.Context, agencyID int64) ([]service.Connection, error) {
	raw, err := c.rdb.Get(ctx, listCacheKey(agencyID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache read: %w", err)
	}
	var conns []service.Connection
	if err := json.Unmarshal(raw, &conns); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it.
		return nil, nil
	}
	return conns, nil
}

func (c *redisConnectionListCache) Set(ctx context.Context, agencyID int64, conns []service.Connection) error {
	raw, err := json.Marshal(conns)
	if err != nil {
		return fmt.Errorf("encode connection list: %w", err)
	}
	if err := c.rdb.Set(ctx, listCacheKey(agencyID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("list cache write: %w", err)
	}
	return nil
}

func (c *redisConnectionListCache) Invalidate(ctx context.Context, agencyID int64) error {
	if err := c.rdb.Del(ctx, listCacheKey(agencyID)).Err(); err != nil {
		return fmt.Errorf("list cache invalidate: %w", err)
	}
	return nil
}

func listCacheKey(agencyID int64) string {
	return fmt.Sprintf("%s%d", listCacheKeyPrefix, agencyID)
}

// tieredConnectionListCache layers a per-instance memory cache in front of
// the shared redis cache. Reads prefer the local layer and backfill it from
// the shared one; writes and invalidations go to both.
type tieredConnectionListCache struct {
	local  service.ConnectionListCache
	shared service.ConnectionListCache
}

// NewTieredConnectionListCache composes the two-tier listing cache.
func NewTieredConnectionListCache(local, shared service.ConnectionListCache) service.ConnectionListCache {
	return &tieredConnectionListCache{local: local, shared: shared}
}

func (c *tieredConnectionListCache) Get(ctx context.Context, agencyID int64) ([]service.Connection, error) {
	if conns, err := c.local.Get(ctx, agencyID); err == nil && conns != nil {
		return conns, nil
	}
	conns, err := c.shared.Get(ctx, agencyID)
	if err != nil || conns == nil {
		return conns, err
	}
	// Backfill failures leave the local layer cold, nothing more.
	_ = c.local.Set(ctx, agencyID, conns)
	return conns, nil
}

func (c *tieredConnectionListCache) Set(ctx context.Context, agencyID int64, conns []service.Connection) error {
	if err := c.shared.Set(ctx, agencyID, conns); err != nil {
		return err
	}
	return c.local.Set(ctx, agencyID, conns)
}

func (c *tieredConnectionListCache) Invalidate(ctx context.Context, agencyID int64) error {
	// Local goes first so this instance never re-serves an entry the shared
	// delete is about to remove.
	if err := c.local.Invalidate(ctx, agencyID); err != nil {
		return err
	}
	return c.shared.Invalidate(ctx, agencyID)
}

// memoryConnectionListCache is the per-instance layer of the tiered cache,
// also usable on its own in tests.
type memoryConnectionListCache struct {
	cache *gocache.Cache
}

// NewMemoryConnectionListCache creates an in-process listing cache.
func NewMemoryConnectionListCache() service.ConnectionListCache {
	return &memoryConnectionListCache{
		cache: gocache.New(listCacheTTL, 10*time.Minute),
	}
}

func (c *memoryConnectionListCache) Get(_ context.Context, agencyID int64) ([]service.Connection, error) {
	v, ok := c.cache.Get(listCacheKey(agencyID))
	if !ok {
		return nil, nil
	}
	conns, ok := v.([]service.Connection)
	if !ok {
		return nil, nil
	}
	return conns, nil
}

func (c *memoryConnectionListCache) Set(_ context.Context, agencyID int64, conns []service.Connection) error {
	c.cache.Set(listCacheKey(agencyID), conns, gocache.DefaultExpiration)
	return nil
}

func (c *memoryConnectionListCache) Invalidate(_ context.Context, agencyID int64) error {
	c.cache.Delete(listCacheKey(agencyID))
	return nil
}
