package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func testCache(t *testing.T, capacity int) (*Cache, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	log := logging.New(logging.Config{Level: "error", Format: "json", Component: "cache-test"})
	c, err := New(Config{MemoryCapacity: capacity, DefaultTTL: time.Minute}, store.Cache(), log)
	require.NoError(t, err)
	return c, store
}

func TestParamHashIsOrderInsensitive(t *testing.T) {
	a, err := ParamHash(map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	b, err := ParamHash(map[string]any{"y": "two", "x": 1})
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := ParamHash(map[string]any{"x": 1, "y": "three"})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestCacheSetThenGetHitsMemory(t *testing.T) {
	c, _ := testCache(t, 10)
	ctx := context.Background()
	params := map[string]any{"q": "hello"}

	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "search", params, []byte(`{"ok":true}`), time.Minute))

	val, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "search", params)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"ok":true}`, string(val))
}

func TestCacheMissWhenNotSet(t *testing.T) {
	c, _ := testCache(t, 10)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "search", map[string]any{"q": "nope"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheDurableHitPromotesToMemory(t *testing.T) {
	c, store := testCache(t, 10)
	ctx := context.Background()
	params := map[string]any{"q": "hello"}
	hash, err := ParamHash(params)
	require.NoError(t, err)
	key := Key(model.CapabilityTool, "srvA", "search", hash)

	// Write straight to the durable tier, bypassing Set, so the memory tier
	// starts cold.
	require.NoError(t, store.Cache().Put(ctx, model.CacheEntry{
		Key: key, Kind: model.CapabilityTool, ServerID: "srvA", Name: "search",
		ParamHash: hash, Value: []byte("durable-value"), ExpiresAt: time.Now().Add(time.Minute), CreatedAt: time.Now(),
	}))

	val, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "search", params)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "durable-value", string(val))

	row, found, err := store.Cache().Get(ctx, key, time.Now())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), row.HitCount)
}

func TestCacheExpiredEntryIsAMiss(t *testing.T) {
	c, _ := testCache(t, 10)
	ctx := context.Background()
	params := map[string]any{"q": "hello"}

	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "search", params, []byte("v"), time.Nanosecond))
	time.Sleep(2 * time.Millisecond)

	_, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "search", params)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheMemoryTierEvictsLRUTail(t *testing.T) {
	c, _ := testCache(t, 2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "a", map[string]any{"i": 1}, []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "b", map[string]any{"i": 2}, []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "c", map[string]any{"i": 3}, []byte("3"), time.Minute))

	require.Equal(t, 2, c.memory.Len())
	_, ok := c.memory.Peek(Key(model.CapabilityTool, "srvA", "a", mustHash(t, map[string]any{"i": 1})))
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestCacheInvalidateByServer(t *testing.T) {
	c, store := testCache(t, 10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "a", map[string]any{}, []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvB", "b", map[string]any{}, []byte("2"), time.Minute))

	require.NoError(t, c.Invalidate(ctx, "srvA", ""))

	_, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "a", map[string]any{})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.Get(ctx, model.CapabilityTool, "srvB", "b", map[string]any{})
	require.NoError(t, err)
	require.True(t, ok)

	list, err := store.Cache().DeleteExpired(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), list)
}

func TestCacheInvalidateAll(t *testing.T) {
	c, _ := testCache(t, 10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvA", "a", map[string]any{}, []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, model.CapabilityTool, "srvB", "b", map[string]any{}, []byte("2"), time.Minute))

	require.NoError(t, c.Invalidate(ctx, "", ""))

	_, ok, err := c.Get(ctx, model.CapabilityTool, "srvA", "a", map[string]any{})
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = c.Get(ctx, model.CapabilityTool, "srvB", "b", map[string]any{})
	require.NoError(t, err)
	require.False(t, ok)
}

func mustHash(t *testing.T, params map[string]any) string {
	t.Helper()
	h, err := ParamHash(params)
	require.NoError(t, err)
	return h
}
