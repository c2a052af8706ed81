package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func TestSummarizeAggregatesCountsAndTotals(t *testing.T) {
	store := memstore.New().Usage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, model.UsageRecord{
		ID: "1", KeyID: "key1", Success: true, TokensUsed: 100, CostCredits: 0.5, CreatedAt: now,
	}))
	require.NoError(t, store.Create(ctx, model.UsageRecord{
		ID: "2", KeyID: "key1", Success: false, TokensUsed: 10, CostCredits: 0.1, CreatedAt: now,
	}))
	require.NoError(t, store.Create(ctx, model.UsageRecord{
		ID: "3", KeyID: "key2", Success: true, TokensUsed: 999, CostCredits: 9, CreatedAt: now,
	}))

	r := New(store)
	summary, err := r.Summarize(ctx, "key1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, summary.CallCount)
	require.Equal(t, 1, summary.SuccessCount)
	require.Equal(t, 1, summary.FailureCount)
	require.Equal(t, int64(110), summary.TotalTokens)
	require.InDelta(t, 0.6, summary.TotalCost, 0.0001)
}

func TestCostSinceMatchesStoreAggregate(t *testing.T) {
	store := memstore.New().Usage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, model.UsageRecord{ID: "1", KeyID: "key1", CostCredits: 1.25, CreatedAt: now}))
	require.NoError(t, store.Create(ctx, model.UsageRecord{ID: "2", KeyID: "key1", CostCredits: 2.75, CreatedAt: now}))

	r := New(store)
	total, err := r.CostSince(ctx, "key1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.InDelta(t, 4.0, total, 0.0001)
}

func TestHistoryReturnsEmptyForUnknownKey(t *testing.T) {
	store := memstore.New().Usage()
	r := New(store)
	records, err := r.History(context.Background(), "ghost", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, records)
}
