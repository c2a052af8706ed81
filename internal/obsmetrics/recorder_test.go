package obsmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/events"
)

func TestEventRecorderObservesToolInvocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.New()

	rec := NewEventRecorder(testLogger(), bus, m)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop(context.Background())

	bus.Publish("tool.invoked", map[string]any{
		"server_id":   "search-server",
		"name":        "search",
		"duration_ms": int64(250),
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("search-server", "search", "ok")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventRecorderObservesToolFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.New()

	rec := NewEventRecorder(testLogger(), bus, m)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop(context.Background())

	bus.Publish("tool.failed", map[string]any{"server_id": "search-server", "name": "search"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("search-server", "search", "error")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventRecorderObservesWorkflowCompletionAndSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.New()

	rec := NewEventRecorder(testLogger(), bus, m)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"workflow_id": "wf-1", "duration_ms": int64(1500)})
	bus.Publish("workflow.step.completed", map[string]any{"execution_id": "exec-1"})
	bus.Publish("workflow.step.failed", map[string]any{"execution_id": "exec-1"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.WorkflowExecutionsTotal.WithLabelValues("wf-1", "completed")) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.WorkflowStepsTotal.WithLabelValues("exec-1", "completed")) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.WorkflowStepsTotal.WithLabelValues("exec-1", "failed")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventRecorderObservesServerReconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bus := events.New()

	rec := NewEventRecorder(testLogger(), bus, m)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop(context.Background())

	bus.Publish("server.connected", map[string]any{"server_id": "search-server"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PoolReconnectsTotal.WithLabelValues("search-server")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventRecorderStopIsIdempotent(t *testing.T) {
	m := New(prometheus.NewRegistry())
	bus := events.New()

	rec := NewEventRecorder(testLogger(), bus, m)
	require.NoError(t, rec.Start(context.Background()))
	require.NoError(t, rec.Stop(context.Background()))
	require.NoError(t, rec.Stop(context.Background()))
}
