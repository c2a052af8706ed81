// Package audit implements the admin audit log (spec §6 surface,
// supplemented per SPEC_FULL.md §12): one AuditEntry per mutating admin
// operation, batched to storage the way the Workflow Engine batches
// ExecutionStep writes rather than persisted synchronously on every call.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Config controls batching thresholds.
type Config struct {
	// BatchSize triggers an immediate flush once this many entries are buffered.
	BatchSize int
	// FlushInterval bounds how long an entry can sit buffered before a flush.
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	return c
}

// Entry is the caller-facing shape of one audit record; CreatedAt and ID
// are assigned by Record.
type Entry struct {
	Action       string
	KeyID        string
	TenantID     string
	ResourceType string
	ResourceID   string
	DurationMs   int64
	Success      bool
	Error        string
}

// Logger buffers audit entries in memory and flushes them to storage on
// a size or time trigger.
type Logger struct {
	log   *logging.Logger
	store storage.AuditStore
	cfg   Config
	clock func() time.Time

	mu  sync.Mutex
	buf []model.AuditEntry

	flushCh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(log *logging.Logger, store storage.AuditStore, cfg Config) *Logger {
	return &Logger{log: log, store: store, cfg: cfg.withDefaults(), clock: time.Now, flushCh: make(chan struct{}, 1)}
}

// Start begins the background flush loop.
func (l *Logger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				l.flush(context.Background())
				return
			case <-ticker.C:
				l.flush(runCtx)
			case <-l.flushCh:
				l.flush(runCtx)
			}
		}
	}()
	return nil
}

// Stop flushes any buffered entries and halts the background loop.
func (l *Logger) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	l.running = false
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Record buffers one entry, asking for an immediate flush once the batch
// threshold is reached.
func (l *Logger) Record(e Entry) {
	rec := model.AuditEntry{
		ID: ids.New(), Action: e.Action, KeyID: e.KeyID, TenantID: e.TenantID,
		ResourceType: e.ResourceType, ResourceID: e.ResourceID, DurationMs: e.DurationMs,
		Success: e.Success, Error: e.Error, CreatedAt: l.clock(),
	}

	l.mu.Lock()
	l.buf = append(l.buf, rec)
	due := len(l.buf) >= l.cfg.BatchSize
	l.mu.Unlock()

	if due {
		select {
		case l.flushCh <- struct{}{}:
		default:
		}
	}
}

func (l *Logger) flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	for _, rec := range batch {
		if err := l.store.Create(ctx, rec); err != nil {
			l.log.WithError(err).Warn("failed to persist audit entry")
		}
	}
}

// List returns the most recent audit entries, most recent first.
func (l *Logger) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	return l.store.List(ctx, limit)
}
