package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cargo-backoffice/internal/cache"
)

func TestCacheJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := cache.New(rdb, time.Minute)
	ctx := context.Background()

	var got map[string]int
	hit, err := c.GetJSON(ctx, cache.KeyTariffTable(0), &got)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, cache.KeyTariffTable(0), map[string]int{"a": 1}))
	hit, err = c.GetJSON(ctx, cache.KeyTariffTable(0), &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, got["a"])

	mr.FastForward(2 * time.Minute)
	hit, err = c.GetJSON(ctx, cache.KeyTariffTable(0), &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilCacheIsAlwaysAMiss(t *testing.T) {
	var c *cache.Cache
	hit, err := c.GetJSON(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.SetJSON(context.Background(), "k", 1))
	require.NoError(t, c.Delete(context.Background(), "k"))
	require.Equal(t, "cargo:branch:7:nomenclature", cache.KeyBranchWhitelist(7))
}

func TestCacheBytesUseOwnTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := cache.New(rdb, time.Minute)
	ctx := context.Background()
	key := cache.KeyReportExportFile("x1")

	require.NoError(t, c.SetBytes(ctx, key, []byte("PK\x03\x04"), time.Hour))
	data, ok, err := c.GetBytes(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("PK\x03\x04"), data)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetBytes(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGenerationCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.New(rdb, time.Minute)
	ctx := context.Background()

	gen, err := c.Generation(ctx, cache.KeyTariffGeneration())
	require.NoError(t, err)
	require.Zero(t, gen)

	next, err := c.Bump(ctx, cache.KeyTariffGeneration())
	require.NoError(t, err)
	require.Equal(t, int64(1), next)
	gen, err = c.Generation(ctx, cache.KeyTariffGeneration())
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)
	require.NotEqual(t, cache.KeyTariffTable(0), cache.KeyTariffTable(gen))

	var nilCache *cache.Cache
	gen, err = nilCache.Bump(ctx, cache.KeyTariffGeneration())
	require.NoError(t, err)
	require.Zero(t, gen)
}
