package ratelfront

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "ratelfront-test"})
}

func TestRolloverWorkerPrunesClosedPeriodsOlderThanRetention(t *testing.T) {
	store := memstore.New().Budgets()
	ctx := context.Background()

	closedStart := time.Now().Add(-200 * 24 * time.Hour)
	closedEnd := closedStart.Add(24 * time.Hour)
	_, err := store.GetOrInitUsage(ctx, "rule-old", closedStart, closedEnd)
	require.NoError(t, err)

	currentStart := time.Now().Add(-time.Hour)
	currentEnd := currentStart.Add(24 * time.Hour)
	_, err = store.GetOrInitUsage(ctx, "rule-current", currentStart, currentEnd)
	require.NoError(t, err)

	worker := NewRolloverWorker(testLogger(), store, RolloverConfig{Schedule: "@every 10ms", RetainFor: 90 * 24 * time.Hour})
	runCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, worker.Start(runCtx))

	require.Eventually(t, func() bool {
		n, err := store.DeleteUsageOlderThan(ctx, time.Now().Add(-90*24*time.Hour))
		require.NoError(t, err)
		return n == 0
	}, time.Second, 5*time.Millisecond, "closed period older than retention should already have been pruned")

	cancel()
	require.NoError(t, worker.Stop(context.Background()))

	remaining, err := store.DeleteUsageOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), remaining, "only the still-current period should remain")
}
