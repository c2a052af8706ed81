package events

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
)

// CleanupConfig configures the periodic webhook-delivery pruning job.
type CleanupConfig struct {
	// Schedule is a robfig/cron spec, e.g. "@every 1h" or "0 0 * * *".
	Schedule string
	// RetainDays is how many days of delivery history to keep.
	RetainDays int
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.Schedule == "" {
		c.Schedule = "@every 1h"
	}
	if c.RetainDays <= 0 {
		c.RetainDays = 30
	}
	return c
}

// CleanupWorker periodically prunes webhook_deliveries older than
// RetainDays (spec §4.5: "Old deliveries are pruned by a periodic
// cleanup (configurable days-to-keep)"), scheduled with robfig/cron/v3
// the way SPEC_FULL.md assigns periodic sweeps.
type CleanupWorker struct {
	log   *logging.Logger
	store storage.WebhookStore
	cfg   CleanupConfig
	clock func() time.Time

	sched *cron.Cron
}

func NewCleanupWorker(log *logging.Logger, store storage.WebhookStore, cfg CleanupConfig) *CleanupWorker {
	return &CleanupWorker{log: log, store: store, cfg: cfg.withDefaults(), clock: time.Now}
}

// Start registers the sweep on the configured cron schedule and begins
// running it. ctx is used only for the sweep calls themselves; the cron
// scheduler's own lifecycle is stopped via Stop.
func (c *CleanupWorker) Start(ctx context.Context) error {
	if c.sched != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(c.cfg.Schedule, func() { c.sweep(ctx) }); err != nil {
		return fmt.Errorf("events: invalid cleanup schedule %q: %w", c.cfg.Schedule, err)
	}
	c.sched = sched
	c.sched.Start()
	c.log.Info("webhook delivery cleanup worker started")
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish or
// ctx to expire, whichever comes first.
func (c *CleanupWorker) Stop(ctx context.Context) error {
	if c.sched == nil {
		return nil
	}
	stopCtx := c.sched.Stop()
	c.sched = nil
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *CleanupWorker) sweep(ctx context.Context) {
	cutoff := c.clock().Add(-time.Duration(c.cfg.RetainDays) * 24 * time.Hour)
	n, err := c.store.DeleteDeliveriesOlderThan(ctx, cutoff)
	if err != nil {
		c.log.WithError(err).Warn("webhook delivery cleanup sweep failed")
		return
	}
	if n > 0 {
		c.log.WithField("deleted", n).Info("pruned old webhook deliveries")
	}
}
