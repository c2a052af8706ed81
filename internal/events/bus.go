// Package events implements the Event Fabric (spec §4.5): an in-process
// pub/sub that drives Server-Sent Events streams and at-least-once
// webhook delivery, adapted from the teacher's scheduler/worker lifecycle
// style in packages/com.r3e.services.automation.
package events

import (
	"sync"
	"time"
)

// Event is one emission flowing through the Bus. Kind is e.g.
// "tool.invoked", "workflow.step.started", "workflow.completed".
// ServerID and ExecutionID are extracted from Payload (when present
// under the conventional keys) so subscribers can filter without
// re-parsing every payload themselves.
type Event struct {
	Kind        string
	ServerID    string
	ExecutionID string
	Payload     any
	At          time.Time
}

// Bus is the narrow publisher interface the Router and Workflow Engine
// depend on.
type Bus struct {
	mu   sync.RWMutex
	subs map[int64]*subscription
	next int64
}

type subscription struct {
	kinds       map[string]bool
	serverID    string
	executionID string
	ch          chan Event
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int64]*subscription)}
}

// Filter narrows a subscription. A zero-value Filter matches everything.
// Kinds, when non-empty, is an allow-list; ServerID/ExecutionID, when
// non-empty, require an exact match against the event's corresponding
// field.
type Filter struct {
	Kinds       []string
	ServerID    string
	ExecutionID string
}

// Subscribe registers a new listener and returns its event channel plus
// an unsubscribe function. The channel is buffered so a slow SSE client
// cannot stall publishers; events are dropped for that subscriber if the
// buffer fills.
func (b *Bus) Subscribe(f Filter) (<-chan Event, func()) {
	kinds := make(map[string]bool, len(f.Kinds))
	for _, k := range f.Kinds {
		kinds[k] = true
	}
	sub := &subscription{kinds: kinds, serverID: f.ServerID, executionID: f.ExecutionID, ch: make(chan Event, 64)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			close(s.ch)
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish implements the router.EventPublisher / workflow.EventPublisher
// contract and fans the event out to every matching subscriber.
func (b *Bus) Publish(kind string, payload any) {
	evt := Event{Kind: kind, Payload: payload, At: time.Now()}
	if m, ok := payload.(map[string]any); ok {
		if sid, ok := m["server_id"].(string); ok {
			evt.ServerID = sid
		}
		if eid, ok := m["execution_id"].(string); ok {
			evt.ExecutionID = eid
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.matches(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// subscriber too slow; drop rather than block the publisher.
		}
	}
}

func (s *subscription) matches(evt Event) bool {
	if len(s.kinds) > 0 && !s.kinds[evt.Kind] {
		return false
	}
	if s.serverID != "" && s.serverID != evt.ServerID {
		return false
	}
	if s.executionID != "" && s.executionID != evt.ExecutionID {
		return false
	}
	return true
}
