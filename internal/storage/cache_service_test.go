package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/portfolio-tracker/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheService(NewRedisCacheFromClient(client), ttl), mr
}

func TestCacheSetAndGet(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	allocation := &models.PortfolioAllocation{
		PortfolioID:   "p1",
		AsOf:          time.Now().UTC().Truncate(time.Second),
		TotalValueUSD: decimal.NewFromInt(1234),
		Items: []models.AllocationItem{
			{Asset: "BTC", Quantity: decimal.NewFromInt(1), ValueUSD: decimal.NewFromInt(1234), WeightPct: 100},
		},
	}

	key := cache.AllocationKey("p1")
	require.NoError(t, cache.Set(ctx, key, allocation))

	var cached models.PortfolioAllocation
	hit, err := cache.Get(ctx, key, &cached)
	require.NoError(t, err)
	require.True(t, hit)

	assert.Equal(t, "p1", cached.PortfolioID)
	assert.True(t, cached.TotalValueUSD.Equal(decimal.NewFromInt(1234)))
	require.Len(t, cached.Items, 1)
	assert.Equal(t, "BTC", cached.Items[0].Asset)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	var out models.PortfolioAllocation
	hit, err := cache.Get(context.Background(), cache.AllocationKey("absent"), &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheInvalidateAllocation(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := cache.AllocationKey("p1")
	require.NoError(t, cache.Set(ctx, key, map[string]string{"x": "y"}))
	require.NoError(t, cache.InvalidateAllocation(ctx, "p1"))

	var out map[string]string
	hit, err := cache.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	key := cache.AllocationKey("p1")
	require.NoError(t, cache.Set(ctx, key, map[string]string{"x": "y"}))

	mr.FastForward(31 * time.Second)

	var out map[string]string
	hit, err := cache.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
