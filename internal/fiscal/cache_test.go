package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	assert.False(t, hit)

	cfg := Config{CompanyID: 4, IVARate: decimal.NewFromInt(16), IVAEnabled: true, TaxMode: TaxModeIncluded, RoundingRule: RoundingTo90}
	require.NoError(t, cache.Set(ctx, cfg))
	assert.True(t, mr.Exists("fiscal:config:4"))

	got, hit, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, cfg.IVARate.Equal(got.IVARate))
	assert.Equal(t, RoundingTo90, got.RoundingRule)

	mr.FastForward(2 * time.Minute)
	_, hit, err = cache.Get(ctx, 4)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheSetKeepsNewerCopy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	saved := time.Now().UTC()
	newer := Config{CompanyID: 4, IVARate: decimal.NewFromInt(10), IVAEnabled: true, TaxMode: TaxModeExcluded, RoundingRule: RoundingExact, UpdatedAt: saved}
	older := newer
	older.IVARate = decimal.NewFromInt(19)
	older.UpdatedAt = saved.Add(-time.Minute)

	require.NoError(t, cache.Set(ctx, newer))
	require.NoError(t, cache.Set(ctx, older))

	got, hit, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, decimal.NewFromInt(10).Equal(got.IVARate))

	later := newer
	later.IVARate = decimal.NewFromInt(5)
	later.UpdatedAt = saved.Add(time.Minute)
	require.NoError(t, cache.Set(ctx, later))
	got, _, err = cache.Get(ctx, 4)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(got.IVARate))
}

func TestCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, DefaultConfig(9)))
	require.NoError(t, cache.Invalidate(ctx, 9))
	assert.False(t, mr.Exists("fiscal:config:9"))
}

func TestNilCacheIsANoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, cache.Set(ctx, DefaultConfig(1)))
	require.NoError(t, cache.Invalidate(ctx, 1))
}
