package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/storage/model"
)

func TestRateLimitIncrementRollsExpiredWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	b, err := s.RateLimits().Increment(ctx, "key1", "srvA", base)
	require.NoError(t, err)
	require.Equal(t, int64(1), b.MinuteCount)
	require.Equal(t, int64(1), b.DayCount)

	b, err = s.RateLimits().Increment(ctx, "key1", "srvA", base.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(2), b.MinuteCount)
	require.Equal(t, int64(2), b.DayCount)

	b, err = s.RateLimits().Increment(ctx, "key1", "srvA", base.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), b.MinuteCount, "minute window should have rolled over")
	require.Equal(t, int64(3), b.DayCount, "day window should not have rolled yet")
}

func TestRateLimitDeleteByServerRemovesOnlyThatServersBuckets(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.RateLimits().Increment(ctx, "key1", "srvA", base)
	require.NoError(t, err)
	_, err = s.RateLimits().Increment(ctx, "key2", "srvA", base)
	require.NoError(t, err)
	_, err = s.RateLimits().Increment(ctx, "key1", "srvB", base)
	require.NoError(t, err)

	require.NoError(t, s.RateLimits().DeleteByServer(ctx, "srvA"))

	b, err := s.RateLimits().GetOrInit(ctx, "key1", "srvA", base)
	require.NoError(t, err)
	require.Zero(t, b.MinuteCount, "srvA's bucket must be gone, not merely reset in place")

	b, err = s.RateLimits().GetOrInit(ctx, "key1", "srvB", base)
	require.NoError(t, err)
	require.Equal(t, int64(1), b.MinuteCount, "srvB's bucket must be untouched by a different server's deletion")
}

func TestServerStoreCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Servers().Create(ctx, model.ServerConfig{ID: "s1", Name: "alpha", Enabled: true})
	require.NoError(t, err)

	got, err := s.Servers().Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "alpha", got.Name)

	_, err = s.Servers().Get(ctx, "missing")
	require.Error(t, err)

	got.Name = "alpha-renamed"
	require.NoError(t, s.Servers().Update(ctx, got))

	list, err := s.Servers().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "alpha-renamed", list[0].Name)

	require.NoError(t, s.Servers().Delete(ctx, "s1"))
	require.Error(t, s.Servers().Delete(ctx, "s1"))
}

func TestCacheStoreExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Cache().Put(ctx, model.CacheEntry{
		Key: "k1", Value: []byte("v"), ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))

	_, ok, err := s.Cache().Get(ctx, "k1", now.Add(30*time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Cache().Get(ctx, "k1", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.Cache().DeleteExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestBudgetUsageAccrual(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	require.NoError(t, s.Budgets().CreateRule(ctx, model.BudgetRule{ID: "r1", Scope: model.BudgetScopeTenant, ScopeID: "t1", Limit: 100, Period: model.BudgetPeriodMonth}))

	u, err := s.Budgets().GetOrInitUsage(ctx, "r1", start, end)
	require.NoError(t, err)
	require.Equal(t, float64(0), u.Used)

	u, err = s.Budgets().AddUsage(ctx, "r1", start, 12.5)
	require.NoError(t, err)
	require.Equal(t, 12.5, u.Used)

	u, err = s.Budgets().AddUsage(ctx, "r1", start, 2.5)
	require.NoError(t, err)
	require.Equal(t, 15.0, u.Used)
}
