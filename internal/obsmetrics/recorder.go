package obsmetrics

import (
	"context"
	"sync"

	"github.com/opencore/mcpgate/internal/events"
	"github.com/opencore/mcpgate/internal/logging"
)

// EventRecorder subscribes to the Event Fabric's Bus and updates Metrics
// from the events it observes, the same worker-over-a-subscription shape
// as events.WebhookWorker. This keeps router and workflow free of a direct
// dependency on obsmetrics: they only know about events.Bus.
type EventRecorder struct {
	log     *logging.Logger
	bus     *events.Bus
	metrics *Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewEventRecorder(log *logging.Logger, bus *events.Bus, metrics *Metrics) *EventRecorder {
	return &EventRecorder{log: log, bus: bus, metrics: metrics}
}

// Start subscribes to every bus event and begins updating metrics from it.
func (r *EventRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	ch, unsubscribe := r.bus.Subscribe(events.Filter{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				r.observe(evt)
			}
		}
	}()

	r.log.Info("metrics event recorder started")
	return nil
}

// Stop cancels the subscription loop and waits for it to exit or ctx to
// expire.
func (r *EventRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func (r *EventRecorder) observe(evt events.Event) {
	payload, _ := evt.Payload.(map[string]any)

	switch evt.Kind {
	case "tool.invoked":
		r.metrics.RecordToolInvocation(evt.ServerID, stringField(payload, "name"), "ok", millisField(payload, "duration_ms"))
	case "tool.failed":
		r.metrics.RecordToolInvocation(evt.ServerID, stringField(payload, "name"), "error", 0)
	case "workflow.completed":
		r.metrics.RecordWorkflowExecution(stringField(payload, "workflow_id"), "completed", millisField(payload, "duration_ms"))
	case "workflow.failed":
		r.metrics.RecordWorkflowExecution(stringField(payload, "workflow_id"), "failed", millisField(payload, "duration_ms"))
	case "workflow.step.completed":
		r.metrics.RecordWorkflowStep(stringField(payload, "execution_id"), "completed")
	case "workflow.step.failed":
		r.metrics.RecordWorkflowStep(stringField(payload, "execution_id"), "failed")
	case "server.connected":
		r.metrics.RecordReconnect(evt.ServerID)
	}
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func millisField(payload map[string]any, key string) float64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int64:
		return float64(v) / 1000
	case int:
		return float64(v) / 1000
	case float64:
		return v / 1000
	default:
		return 0
	}
}
