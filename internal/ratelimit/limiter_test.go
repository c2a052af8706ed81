package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/memstore"
)

func TestLimiterAllowsUpToCapThenRejects(t *testing.T) {
	store := memstore.New()
	l := New(store.RateLimits())
	ctx := context.Background()
	policy := Policy{PerMinute: 2, PerDay: 10}

	r, gerr := l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)
	require.True(t, r.Allowed)
	require.Equal(t, int64(1), r.RemainingPerMinute)

	r, gerr = l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)
	require.True(t, r.Allowed)
	require.Equal(t, int64(0), r.RemainingPerMinute)

	r, gerr = l.Allow(ctx, "key1", "srvA", policy)
	require.NotNil(t, gerr)
	require.False(t, r.Allowed)
	require.Equal(t, errs.KindRateLimited, gerr.Kind)
	require.Equal(t, int64(0), r.RemainingPerMinute)
}

func TestLimiterDistinctServersDoNotShareBucket(t *testing.T) {
	store := memstore.New()
	l := New(store.RateLimits())
	ctx := context.Background()
	policy := Policy{PerMinute: 1, PerDay: 10}

	_, gerr := l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)

	r, gerr := l.Allow(ctx, "key1", "srvB", policy)
	require.Nil(t, gerr)
	require.True(t, r.Allowed)
}

func TestLimiterUnlimitedCapReportsSentinel(t *testing.T) {
	store := memstore.New()
	l := New(store.RateLimits())
	ctx := context.Background()
	policy := Policy{PerMinute: 0, PerDay: 0}

	r, gerr := l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)
	require.True(t, r.Allowed)
	require.Equal(t, int64(-1), r.RemainingPerMinute)
	require.Equal(t, int64(-1), r.RemainingPerDay)
}

func TestLimiterBurstGuardRejectsWithoutDurableCharge(t *testing.T) {
	store := memstore.New()
	l := New(store.RateLimits())
	ctx := context.Background()
	policy := Policy{PerMinute: 100, PerDay: 1000, BurstPerSecond: 0.0001, BurstSize: 1}

	r, gerr := l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)
	require.True(t, r.Allowed)

	_, gerr = l.Allow(ctx, "key1", "srvA", policy)
	require.NotNil(t, gerr)
	require.Equal(t, errs.KindRateLimited, gerr.Kind)

	bucket, err := store.RateLimits().GetOrInit(ctx, "key1", "srvA", r.MinuteResetAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), bucket.MinuteCount, "burst rejection must not touch the durable bucket")
}

func TestForgetServerDropsBurstGuardAndDurableBucket(t *testing.T) {
	store := memstore.New()
	l := New(store.RateLimits())
	ctx := context.Background()
	policy := Policy{PerMinute: 10, PerDay: 100, BurstPerSecond: 0.0001, BurstSize: 1}

	_, gerr := l.Allow(ctx, "key1", "srvA", policy)
	require.Nil(t, gerr)
	_, gerr = l.Allow(ctx, "key2", "srvA", policy)
	require.Nil(t, gerr)

	require.NoError(t, l.ForgetServer(ctx, "srvA"))

	l.mu.Lock()
	_, stillBurstKey1 := l.bursts["key1:srvA"]
	_, stillBurstKey2 := l.bursts["key2:srvA"]
	l.mu.Unlock()
	require.False(t, stillBurstKey1)
	require.False(t, stillBurstKey2)

	bucket, err := store.RateLimits().GetOrInit(ctx, "key1", "srvA", time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(0), bucket.MinuteCount, "durable bucket for the removed server must be gone, not merely reset")
}
