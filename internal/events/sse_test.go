package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamGlobalWritesEventInSpecFormat(t *testing.T) {
	bus := New()
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- StreamGlobal(rec, req, bus, Filter{})
	}()

	require.Eventually(t, func() bool {
		return busHasSubscriber(bus)
	}, time.Second, time.Millisecond)

	bus.Publish("tool.invoked", map[string]any{"server_id": "srv1"})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "event: tool.invoked")
	}, time.Second, 5*time.Millisecond)

	body := rec.Body.String()
	require.Contains(t, body, "event: tool.invoked\ndata: ")
	require.Contains(t, body, "\n\n")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StreamGlobal did not exit after context cancellation")
	}
}

func TestStreamExecutionClosesOnTerminalEvent(t *testing.T) {
	bus := New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/executions/exec-1/events", nil)

	done := make(chan error, 1)
	go func() {
		done <- StreamExecution(rec, req, bus, "exec-1")
	}()

	require.Eventually(t, func() bool {
		return busHasSubscriber(bus)
	}, time.Second, time.Millisecond)

	bus.Publish("workflow.step.started", map[string]any{"execution_id": "exec-1"})
	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StreamExecution did not close itself after a terminal event")
	}

	body := rec.Body.String()
	require.Contains(t, body, "event: workflow.step.started")
	require.Contains(t, body, "event: workflow.completed")
}

func TestStreamExecutionIgnoresOtherExecutions(t *testing.T) {
	bus := New()
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/executions/exec-1/events", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- StreamExecution(rec, req, bus, "exec-1")
	}()

	require.Eventually(t, func() bool {
		return busHasSubscriber(bus)
	}, time.Second, time.Millisecond)

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-other"})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, rec.Body.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StreamExecution did not exit after context cancellation")
	}
}

func busHasSubscriber(b *Bus) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) > 0
}
