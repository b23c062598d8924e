package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	_, found := cache.Get(ctx, "missing")
	require.False(t, found)

	cache.Set(ctx, "answer", 42, time.Minute)
	value, found := cache.Get(ctx, "answer")
	require.True(t, found)
	require.Equal(t, 42, value)

	require.NoError(t, cache.Delete(ctx, "answer"))
	_, found = cache.Get(ctx, "answer")
	require.False(t, found)
}

func TestInMemoryCacheManager_TTLExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "short", "lived", 20*time.Millisecond)
	_, found := cache.Get(ctx, "short")
	require.True(t, found)

	time.Sleep(50 * time.Millisecond)
	_, found = cache.Get(ctx, "short")
	require.False(t, found, "entry should expire after its TTL")
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", 1, time.Minute)
	cache.Set(ctx, "b", 2, time.Minute)
	require.NoError(t, cache.Flush(ctx))

	_, found := cache.Get(ctx, "a")
	require.False(t, found)
	_, found = cache.Get(ctx, "b")
	require.False(t, found)
}

func TestReadThroughCache_LoadsOnceUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := NewReadThroughCache(cache, func(ctx context.Context, key string) (int, error) {
		loads++
		return len(key), nil
	}, false)

	value, err := loader.Get(ctx, "guid-1", "guid-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 6, value)
	require.Equal(t, 1, loads)

	// Second read is served from cache.
	_, err = loader.Get(ctx, "guid-1", "guid-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	require.NoError(t, cache.Delete(ctx, "guid-1"))
	_, err = loader.Get(ctx, "guid-1", "guid-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, loads, "invalidation forces a reload")
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	loadErr := errors.New("store unavailable")
	fail := true
	loader := NewReadThroughCache(cache, func(ctx context.Context, key string) (int, error) {
		if fail {
			return 0, loadErr
		}
		return 7, nil
	}, false)

	_, err := loader.Get(ctx, "k", "k", time.Minute)
	require.ErrorIs(t, err, loadErr)

	fail = false
	value, err := loader.Get(ctx, "k", "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 7, value)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := NewReadThroughCache(cache, func(ctx context.Context, key string) (int, error) {
		loads++
		return loads, nil
	}, true)

	_, err := loader.Get(ctx, "k", "k", time.Minute)
	require.NoError(t, err)
	_, err = loader.Get(ctx, "k", "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, loads, "skip-cache mode always hits the loader")
}
