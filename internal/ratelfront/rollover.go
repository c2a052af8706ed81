// Package ratelfront runs the periodic sweeps that sit in front of the
// rate limiter and budget enforcer: pruning BudgetUsage rows whose period
// has closed so budget_usage doesn't grow unbounded across tenants and
// rules (spec §4.4/§4.3's durable budget state), scheduled with
// robfig/cron/v3 the same way internal/events schedules webhook delivery
// cleanup.
package ratelfront

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
)

// RolloverConfig configures the periodic budget-usage pruning job.
type RolloverConfig struct {
	// Schedule is a robfig/cron spec, e.g. "@every 1h" or "0 0 * * *".
	Schedule string
	// RetainPeriods is how many closed budget periods to keep per rule
	// before a row is eligible for pruning, expressed as an age cutoff.
	RetainFor time.Duration
}

func (c RolloverConfig) withDefaults() RolloverConfig {
	if c.Schedule == "" {
		c.Schedule = "@every 1h"
	}
	if c.RetainFor <= 0 {
		c.RetainFor = 90 * 24 * time.Hour
	}
	return c
}

// RolloverWorker periodically prunes BudgetUsage rows for periods that
// closed more than RetainFor ago. A rule's current period is never
// pruned: GetOrInitUsage/AddUsage key off periodStart, so a closed
// period's row is pure history once its periodEnd has passed.
type RolloverWorker struct {
	log   *logging.Logger
	store storage.BudgetStore
	cfg   RolloverConfig
	clock func() time.Time

	sched *cron.Cron
}

func NewRolloverWorker(log *logging.Logger, store storage.BudgetStore, cfg RolloverConfig) *RolloverWorker {
	return &RolloverWorker{log: log, store: store, cfg: cfg.withDefaults(), clock: time.Now}
}

// Start registers the sweep on the configured cron schedule and begins
// running it.
func (w *RolloverWorker) Start(ctx context.Context) error {
	if w.sched != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(w.cfg.Schedule, func() { w.sweep(ctx) }); err != nil {
		return fmt.Errorf("ratelfront: invalid rollover schedule %q: %w", w.cfg.Schedule, err)
	}
	w.sched = sched
	w.sched.Start()
	w.log.Info("budget rollover worker started")
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish or
// ctx to expire, whichever comes first.
func (w *RolloverWorker) Stop(ctx context.Context) error {
	if w.sched == nil {
		return nil
	}
	stopCtx := w.sched.Stop()
	w.sched = nil
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (w *RolloverWorker) sweep(ctx context.Context) {
	cutoff := w.clock().Add(-w.cfg.RetainFor)
	n, err := w.store.DeleteUsageOlderThan(ctx, cutoff)
	if err != nil {
		w.log.WithError(err).Warn("budget usage rollover sweep failed")
		return
	}
	if n > 0 {
		w.log.WithField("deleted", n).Info("pruned closed budget usage periods")
	}
}
