package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func TestCleanupWorkerPrunesOldTerminalDeliveries(t *testing.T) {
	store := memstore.New().Webhooks()

	old := model.WebhookDelivery{
		ID: "old", SubscriptionID: "sub1", Status: model.DeliverySuccess,
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	recent := model.WebhookDelivery{
		ID: "recent", SubscriptionID: "sub1", Status: model.DeliverySuccess,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateDelivery(context.Background(), old))
	require.NoError(t, store.CreateDelivery(context.Background(), recent))

	worker := NewCleanupWorker(testLogger(), store, CleanupConfig{Schedule: "@every 10ms", RetainDays: 30})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.Start(ctx))

	require.Eventually(t, func() bool {
		n, err := store.DeleteDeliveriesOlderThan(context.Background(), time.Now().Add(-30*24*time.Hour))
		require.NoError(t, err)
		return n == 0
	}, time.Second, 5*time.Millisecond, "old delivery should have been pruned by the worker before our manual check runs")

	cancel()
	require.NoError(t, worker.Stop(context.Background()))
}
