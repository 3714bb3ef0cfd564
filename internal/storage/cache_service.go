package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService caches constructed allocations so repeated reads of the
// latest allocation skip the database. Correctness never depends on the
// cache: construction invalidates the portfolio's entry after every write.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service with the given default TTL
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// AllocationKey builds the cache key for a portfolio's latest allocation.
func (c *CacheService) AllocationKey(portfolioID string) string {
	return fmt.Sprintf("allocation:%s", portfolioID)
}

// Set stores a JSON-serialized value under the default TTL.
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl)
}

// Get retrieves and unmarshals a cached value. Returns false on a miss.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache read failed: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes cache entries
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidateAllocation drops a portfolio's cached allocation.
func (c *CacheService) InvalidateAllocation(ctx context.Context, portfolioID string) error {
	return c.Invalidate(ctx, c.AllocationKey(portfolioID))
}

// TTL returns the configured cache TTL.
func (c *CacheService) TTL() time.Duration {
	return c.ttl
}
