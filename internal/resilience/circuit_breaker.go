// Package resilience implements the Circuit Breaker (spec §4.4) and the
// retry-with-backoff helper the Workflow Engine uses for step execution,
// adapted from the teacher's infrastructure/resilience package.
package resilience

import (
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
)

// State is one of the circuit's three states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the per-server thresholds from spec §4.4's transition table.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	VolumeThreshold  int
	Timeout          time.Duration
	OnStateChange    func(serverID string, from, to State)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		VolumeThreshold:  5,
		Timeout:          30 * time.Second,
	}
}

// Breaker is a single server's circuit state machine.
type Breaker struct {
	mu                  sync.RWMutex
	serverID            string
	cfg                 Config
	state               State
	failures            int
	observations        int
	consecutiveSuccess  int
	openedAt            time.Time
	lastStateChangeAt   time.Time
}

func newBreaker(serverID string, cfg Config) *Breaker {
	return &Breaker{serverID: serverID, cfg: cfg, state: StateClosed, lastStateChangeAt: time.Now()}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Snapshot describes the breaker's exported state for the /servers status API.
type Snapshot struct {
	ServerID          string
	State             State
	FailureCount      int
	ConsecutiveSucc   int
	OpenedAt          time.Time
	LastStateChangeAt time.Time
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		ServerID:          b.serverID,
		State:             b.state,
		FailureCount:      b.failures,
		ConsecutiveSucc:   b.consecutiveSuccess,
		OpenedAt:          b.openedAt,
		LastStateChangeAt: b.lastStateChangeAt,
	}
}

// CanExecute reports whether a call may proceed, transitioning OPEN->HALF_OPEN
// when the configured timeout has elapsed (spec §4.4's canExecute event).
func (b *Breaker) CanExecute() (bool, *errs.GatewayError) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.setState(StateHalfOpen)
			return true, nil
		}
		retryAfter := b.cfg.Timeout - time.Since(b.openedAt)
		return false, errs.CircuitOpen(b.serverID, retryAfter)
	default:
		return true, nil
	}
}

// RecordSuccess applies the recordSuccess transition for the current state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observations++
	switch b.state {
	case StateHalfOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure applies the recordFailure transition for the current state.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observations++
	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.setState(StateOpen)
	case StateClosed:
		if b.observations >= b.cfg.VolumeThreshold && b.failures >= b.cfg.FailureThreshold {
			b.setState(StateOpen)
		}
	}
}

// setState must be called with b.mu held.
func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.lastStateChangeAt = time.Now()
	switch next {
	case StateOpen:
		b.openedAt = time.Now()
		b.failures = 0
		b.observations = 0
	case StateHalfOpen:
		b.consecutiveSuccess = 0
	case StateClosed:
		b.failures = 0
		b.observations = 0
		b.consecutiveSuccess = 0
	}
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.serverID, prev, next)
	}
}

// Registry holds one Breaker per server id, created lazily on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns (creating if needed) the Breaker for a server id.
func (r *Registry) For(serverID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[serverID]
	if !ok {
		b = newBreaker(serverID, r.cfg)
		r.breakers[serverID] = b
	}
	return b
}

// Remove drops a server's breaker, e.g. on ServerConfig deletion.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, serverID)
}

// Execute runs fn under circuit protection for serverID.
func (r *Registry) Execute(serverID string, fn func() error) error {
	b := r.For(serverID)
	if ok, cerr := b.CanExecute(); !ok {
		return cerr
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
