package obsmetrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/opencore/mcpgate/internal/logging"
)

// ProcessCollectorConfig controls the self-health sampling cadence.
type ProcessCollectorConfig struct {
	// Interval between samples.
	Interval time.Duration
}

func (c ProcessCollectorConfig) withDefaults() ProcessCollectorConfig {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	return c
}

// ProcessCollector periodically samples this process's own resource
// usage via gopsutil and publishes it onto Metrics' process gauges, the
// self-health stats an admin /healthz or /metrics scrape surfaces
// alongside the domain counters.
type ProcessCollector struct {
	log     *logging.Logger
	metrics *Metrics
	cfg     ProcessCollectorConfig
	proc    *process.Process

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewProcessCollector(log *logging.Logger, metrics *Metrics, cfg ProcessCollectorConfig) (*ProcessCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessCollector{log: log, metrics: metrics, cfg: cfg.withDefaults(), proc: proc}, nil
}

// Start begins the sampling loop.
func (c *ProcessCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		c.sample()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.sample()
			}
		}
	}()
	return nil
}

// Stop halts the sampling loop, waiting for it to exit or ctx to expire.
func (c *ProcessCollector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *ProcessCollector) sample() {
	if pct, err := c.proc.CPUPercent(); err == nil {
		c.metrics.ProcessCPUPercent.Set(pct)
	} else {
		c.log.WithError(err).Debug("failed to sample process cpu percent")
	}

	if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
		c.metrics.ProcessRSSBytes.Set(float64(mem.RSS))
	} else if err != nil {
		c.log.WithError(err).Debug("failed to sample process memory info")
	}

	if fds, err := c.proc.NumFDs(); err == nil {
		c.metrics.ProcessOpenFDs.Set(float64(fds))
	} else {
		c.log.WithError(err).Debug("failed to sample process open file descriptors")
	}

	c.metrics.ProcessGoroutines.Set(float64(runtime.NumGoroutine()))
}
