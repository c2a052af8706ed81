package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "audit-test"})
}

func TestRecordFlushesOnBatchSize(t *testing.T) {
	store := memstore.New().Audit()
	l := New(testLogger(), store, Config{BatchSize: 2, FlushInterval: time.Hour})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	l.Record(Entry{Action: "create_tenant", TenantID: "t1", Success: true})
	l.Record(Entry{Action: "issue_api_key", TenantID: "t1", Success: true})

	require.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), 0)
		require.NoError(t, err)
		return len(entries) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRecordFlushesOnInterval(t *testing.T) {
	store := memstore.New().Audit()
	l := New(testLogger(), store, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	l.Record(Entry{Action: "revoke_api_key", TenantID: "t1", Success: false, Error: "not found"})

	require.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), 0)
		require.NoError(t, err)
		return len(entries) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopFlushesRemainingEntries(t *testing.T) {
	store := memstore.New().Audit()
	l := New(testLogger(), store, Config{BatchSize: 100, FlushInterval: time.Hour})
	require.NoError(t, l.Start(context.Background()))

	l.Record(Entry{Action: "delete_workflow", TenantID: "t1", Success: true})
	l.Record(Entry{Action: "delete_workflow", TenantID: "t1", Success: true})

	require.NoError(t, l.Stop(context.Background()))

	entries, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	store := memstore.New().Audit()
	l := New(testLogger(), store, Config{BatchSize: 1, FlushInterval: time.Hour})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	l.Record(Entry{Action: "first", TenantID: "t1", Success: true})
	require.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), 0)
		require.NoError(t, err)
		return len(entries) == 1
	}, time.Second, 5*time.Millisecond)

	l.Record(Entry{Action: "second", TenantID: "t1", Success: true})
	require.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), 0)
		require.NoError(t, err)
		return len(entries) == 2
	}, time.Second, 5*time.Millisecond)

	entries, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "second", entries[0].Action)
	require.Equal(t, "first", entries[1].Action)
}
