package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/cache"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/ratelimit"
	"github.com/opencore/mcpgate/internal/registry"
	"github.com/opencore/mcpgate/internal/resilience"
	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type fakeToolClient struct {
	callCount int32
	result    []byte
	err       error
}

func (f *fakeToolClient) ListTools(ctx context.Context) ([]pool.ToolDescriptor, error) {
	return []pool.ToolDescriptor{{Name: "search", Description: "search the index"}}, nil
}
func (f *fakeToolClient) CallTool(ctx context.Context, name string, params map[string]any) (pool.CallResult, error) {
	atomic.AddInt32(&f.callCount, 1)
	if f.err != nil {
		return pool.CallResult{}, f.err
	}
	return pool.CallResult{Raw: f.result}, nil
}
func (f *fakeToolClient) ListPrompts(ctx context.Context) ([]pool.PromptDescriptor, error) { return nil, nil }
func (f *fakeToolClient) GetPrompt(ctx context.Context, name string, params map[string]any) (pool.CallResult, error) {
	return pool.CallResult{}, nil
}
func (f *fakeToolClient) ListResources(ctx context.Context) ([]pool.ResourceDescriptor, error) {
	return nil, nil
}
func (f *fakeToolClient) ReadResource(ctx context.Context, uri string) (pool.CallResult, error) {
	return pool.CallResult{}, nil
}
func (f *fakeToolClient) Ping(ctx context.Context) error { return nil }
func (f *fakeToolClient) Close() error                   { return nil }

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "router-test"})
}

func newTestRouter(t *testing.T, client pool.Client) (*Router, *memstore.Store) {
	t.Helper()
	store := memstore.New()

	reg := registry.New(testLogger(), store.Capabilities())
	p := pool.New(testLogger(), nil, nil)
	p.SetDialFuncForTest(func(ctx context.Context, cfg model.ServerConfig) (pool.Client, error) {
		return client, nil
	})
	_, err := p.Connect(context.Background(), model.ServerConfig{ID: "srv1", Name: "alpha"})
	require.NoError(t, err)

	require.NoError(t, reg.RegisterServer(context.Background(), model.ServerConfig{ID: "srv1", Name: "alpha"}, client))

	c, err := cache.New(cache.Config{}, store.Cache(), testLogger())
	require.NoError(t, err)
	limiter := ratelimit.New(store.RateLimits())
	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	r := New(testLogger(), reg, p, c, limiter, breakers, store.Usage(), nil, Config{CallTimeout: time.Second})
	return r, store
}

func TestRouterInvokeDispatchesSuccessfully(t *testing.T) {
	client := &fakeToolClient{result: []byte(`{"ok":true}`)}
	r, _ := newTestRouter(t, client)

	res := r.Invoke(context.Background(), CallSpec{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1"}, ratelimit.Policy{PerMinute: 100, PerDay: 1000})
	require.NoError(t, res.Err)
	require.Equal(t, `{"ok":true}`, string(res.Raw))
	require.False(t, res.Cached)
	require.Equal(t, int32(1), client.callCount)
}

func TestRouterInvokeUnknownNameReturnsNotFound(t *testing.T) {
	client := &fakeToolClient{}
	r, _ := newTestRouter(t, client)

	res := r.Invoke(context.Background(), CallSpec{Kind: model.CapabilityTool, Name: "alpha/missing", CallerKeyID: "key1"}, ratelimit.Policy{PerMinute: 100, PerDay: 1000})
	require.Error(t, res.Err)
}

func TestRouterCacheHitSkipsDispatch(t *testing.T) {
	client := &fakeToolClient{result: []byte(`{"ok":true}`)}
	r, _ := newTestRouter(t, client)

	call := CallSpec{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1", Cacheable: true, CacheTTL: time.Minute}
	policy := ratelimit.Policy{PerMinute: 100, PerDay: 1000}

	first := r.Invoke(context.Background(), call, policy)
	require.NoError(t, first.Err)
	require.False(t, first.Cached)

	second := r.Invoke(context.Background(), call, policy)
	require.NoError(t, second.Err)
	require.True(t, second.Cached)
	require.Equal(t, int32(1), client.callCount, "a cache hit must not re-dispatch to the backend")
}

func TestRouterRateLimitRejectsOverCap(t *testing.T) {
	client := &fakeToolClient{result: []byte(`{}`)}
	r, _ := newTestRouter(t, client)
	policy := ratelimit.Policy{PerMinute: 1, PerDay: 100}
	call := CallSpec{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1"}

	first := r.Invoke(context.Background(), call, policy)
	require.NoError(t, first.Err)

	second := r.Invoke(context.Background(), call, policy)
	require.Error(t, second.Err)
}

func TestRouterDispatchFailureTripsCircuitAfterThreshold(t *testing.T) {
	client := &fakeToolClient{err: fmt.Errorf("backend exploded")}
	r, _ := newTestRouter(t, client)
	policy := ratelimit.Policy{PerMinute: 1000, PerDay: 10000}
	call := CallSpec{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1"}

	var last Result
	for i := 0; i < 10; i++ {
		last = r.Invoke(context.Background(), call, policy)
		require.Error(t, last.Err)
	}
	require.Contains(t, last.Err.Error(), "circuit", "after enough failures the breaker should trip and reject locally")
}

func TestRouterRemoveServerClearsCascadeState(t *testing.T) {
	client := &fakeToolClient{result: []byte(`{"ok":true}`)}
	r, store := newTestRouter(t, client)
	policy := ratelimit.Policy{PerMinute: 100, PerDay: 1000}
	call := CallSpec{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1", Cacheable: true, CacheTTL: time.Minute}

	first := r.Invoke(context.Background(), call, policy)
	require.NoError(t, first.Err)
	require.False(t, first.Cached)
	second := r.Invoke(context.Background(), call, policy)
	require.NoError(t, second.Err)
	require.True(t, second.Cached, "cache should be warm before removal")

	require.NoError(t, r.RemoveServer(context.Background(), "srv1"))

	// Re-register so invoke can resolve the name again; the breaker,
	// cache, and rate-limit bucket for srv1 must all have been reset.
	require.NoError(t, r.registry.RegisterServer(context.Background(), model.ServerConfig{ID: "srv1", Name: "alpha"}, client))

	third := r.Invoke(context.Background(), call, policy)
	require.NoError(t, third.Err)
	require.False(t, third.Cached, "RemoveServer must have invalidated the cache entry")
	require.Equal(t, int32(2), client.callCount, "a fresh dispatch must have occurred, not a cache hit")

	bucket, err := store.RateLimits().GetOrInit(context.Background(), "key1", "srv1", time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), bucket.MinuteCount, "durable rate-limit bucket must have been deleted, not carrying the pre-removal count")
}

func TestRouterInvokeBatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	client := &fakeToolClient{result: []byte(`{"ok":true}`)}
	r, _ := newTestRouter(t, client)
	policy := ratelimit.Policy{PerMinute: 1000, PerDay: 10000}

	calls := []CallSpec{
		{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1"},
		{Kind: model.CapabilityTool, Name: "alpha/missing", CallerKeyID: "key1"},
		{Kind: model.CapabilityTool, Name: "alpha/search", CallerKeyID: "key1"},
	}
	results := r.InvokeBatch(context.Background(), calls, policy)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}
