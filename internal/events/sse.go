package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval bounds how long an idle SSE connection can go without
// a write; some proxies close connections after ~30-60s of silence.
const keepAliveInterval = 20 * time.Second

// formatSSE renders one event in the exact wire format spec §4.5
// requires: "event: <kind>\ndata: <JSON payload>\n\n".
func formatSSE(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal payload for %q: %w", kind, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", kind, data)), nil
}

var terminalExecutionKinds = map[string]bool{
	"workflow.completed": true,
	"workflow.failed":    true,
}

// StreamGlobal serves the global SSE endpoint: every bus event matching
// filter, until the client disconnects.
func StreamGlobal(w http.ResponseWriter, r *http.Request, bus *Bus, filter Filter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("events: response writer does not support streaming")
	}
	setSSEHeaders(w)

	ch, unsubscribe := bus.Subscribe(filter)
	defer unsubscribe()

	return pump(r, w, flusher, ch, nil)
}

// StreamExecution serves the per-execution SSE endpoint: it emits
// workflow.step.* and workflow.{completed,failed} events for one
// execution id, and closes the stream itself once a terminal event for
// that execution has been written (spec §4.5: "closes on either terminal
// event").
func StreamExecution(w http.ResponseWriter, r *http.Request, bus *Bus, executionID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("events: response writer does not support streaming")
	}
	setSSEHeaders(w)

	ch, unsubscribe := bus.Subscribe(Filter{ExecutionID: executionID})
	defer unsubscribe()

	stopOn := func(evt Event) bool { return terminalExecutionKinds[evt.Kind] }
	return pump(r, w, flusher, ch, stopOn)
}

func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// pump writes events as they arrive until the client disconnects, the
// channel closes, or stopOn reports the just-written event was terminal
// for this stream.
func pump(r *http.Request, w http.ResponseWriter, flusher http.Flusher, ch <-chan Event, stopOn func(Event) bool) error {
	ctx := r.Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			frame, err := formatSSE(evt.Kind, evt.Payload)
			if err != nil {
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return err
			}
			flusher.Flush()
			if stopOn != nil && stopOn(evt) {
				return nil
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
