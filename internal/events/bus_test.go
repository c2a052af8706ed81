package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(Filter{Kinds: []string{"workflow.completed"}})
	defer unsubscribe()

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	select {
	case evt := <-ch:
		require.Equal(t, "workflow.completed", evt.Kind)
		require.Equal(t, "exec-1", evt.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBusPublishSkipsNonMatchingKind(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(Filter{Kinds: []string{"workflow.completed"}})
	defer unsubscribe()

	bus.Publish("tool.invoked", map[string]any{"server_id": "srv1"})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event delivered: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishFiltersByExecutionID(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(Filter{ExecutionID: "exec-1"})
	defer unsubscribe()

	bus.Publish("workflow.step.started", map[string]any{"execution_id": "exec-2"})
	bus.Publish("workflow.step.started", map[string]any{"execution_id": "exec-1"})

	select {
	case evt := <-ch:
		require.Equal(t, "exec-1", evt.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("expected event for exec-1 was not delivered")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(Filter{})
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBusPublishNeverBlocksOnFullSubscriberBuffer(t *testing.T) {
	bus := New()
	_, unsubscribe := bus.Subscribe(Filter{})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish("tool.invoked", map[string]any{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}
