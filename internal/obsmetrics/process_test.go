package obsmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "obsmetrics-test"})
}

func TestProcessCollectorSamplesGoroutineCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	collector, err := NewProcessCollector(testLogger(), m, ProcessCollectorConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, collector.Start(ctx))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ProcessGoroutines) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, collector.Stop(context.Background()))
}

func TestRecordToolInvocationIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordToolInvocation("search-server", "search", "success", 0.25)

	require.Equal(t, float64(1), testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("search-server", "search", "success")))
}

func TestRecordCacheResultDistinguishesHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCacheResult("search-server", true)
	m.RecordCacheResult("search-server", false)
	m.RecordCacheResult("search-server", false)

	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("search-server")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("search-server")))
}

func TestSetCircuitStatePublishesGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetCircuitState("search-server", 2)

	require.Equal(t, float64(2), testutil.ToFloat64(m.CircuitStateGauge.WithLabelValues("search-server")))
}
