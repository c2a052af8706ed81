// Package obsmetrics exposes Prometheus collectors for every gateway
// component (spec §6's observability surface, supplemented per
// SPEC_FULL.md §12), grounded on the teacher's infrastructure/metrics
// package: one struct of pre-registered collectors, constructed once at
// startup and threaded into each component by reference.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the gateway records against.
type Metrics struct {
	// Router / invocation path.
	ToolInvocationsTotal   *prometheus.CounterVec
	ToolInvocationDuration *prometheus.HistogramVec
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       *prometheus.CounterVec
	RateLimitRejectedTotal *prometheus.CounterVec
	CircuitStateGauge      *prometheus.GaugeVec

	// Pool.
	PoolConnectionsOpen *prometheus.GaugeVec
	PoolReconnectsTotal *prometheus.CounterVec

	// Workflow engine.
	WorkflowExecutionsTotal   *prometheus.CounterVec
	WorkflowExecutionDuration *prometheus.HistogramVec
	WorkflowStepsTotal        *prometheus.CounterVec
	BudgetRejectionsTotal     *prometheus.CounterVec

	// Event fabric.
	WebhookDeliveriesTotal *prometheus.CounterVec
	SSEClientsConnected    prometheus.Gauge

	// Self-health process gauges (populated by the ProcessCollector).
	ProcessCPUPercent prometheus.Gauge
	ProcessRSSBytes   prometheus.Gauge
	ProcessOpenFDs    prometheus.Gauge
	ProcessGoroutines prometheus.Gauge
}

// New constructs and registers every collector against registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_tool_invocations_total",
			Help: "Total number of tool invocations routed through the gateway.",
		}, []string{"server", "tool", "status"}),
		ToolInvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpgw_tool_invocation_duration_seconds",
			Help:    "Tool invocation latency, end to end through cache/limiter/circuit/pool.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"server", "tool"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_cache_hits_total",
			Help: "Total response cache hits.",
		}, []string{"server"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_cache_misses_total",
			Help: "Total response cache misses.",
		}, []string{"server"}),
		RateLimitRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_rate_limit_rejected_total",
			Help: "Total invocations rejected by the rate limiter.",
		}, []string{"server", "window"}),
		CircuitStateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpgw_circuit_breaker_state",
			Help: "Circuit breaker state per server (0=closed, 1=half-open, 2=open).",
		}, []string{"server"}),

		PoolConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpgw_pool_connections_open",
			Help: "Current number of live backend connections per server.",
		}, []string{"server", "transport"}),
		PoolReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_pool_reconnects_total",
			Help: "Total backend reconnect attempts.",
		}, []string{"server"}),

		WorkflowExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_workflow_executions_total",
			Help: "Total workflow executions by terminal status.",
		}, []string{"workflow", "status"}),
		WorkflowExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpgw_workflow_execution_duration_seconds",
			Help:    "Workflow execution wall-clock duration.",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"workflow"}),
		WorkflowStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_workflow_steps_total",
			Help: "Total workflow steps executed by status.",
		}, []string{"workflow", "status"}),
		BudgetRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_budget_rejections_total",
			Help: "Total workflow admissions denied by the budget enforcer.",
		}, []string{"scope"}),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpgw_webhook_deliveries_total",
			Help: "Total webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		SSEClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgw_sse_clients_connected",
			Help: "Current number of open SSE stream connections.",
		}),

		ProcessCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgw_process_cpu_percent",
			Help: "Process CPU usage percent, sampled by the self-health collector.",
		}),
		ProcessRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgw_process_rss_bytes",
			Help: "Process resident set size in bytes.",
		}),
		ProcessOpenFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgw_process_open_fds",
			Help: "Process open file descriptor count.",
		}),
		ProcessGoroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpgw_process_goroutines",
			Help: "Current number of live goroutines.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.ToolInvocationsTotal, m.ToolInvocationDuration, m.CacheHitsTotal, m.CacheMissesTotal,
			m.RateLimitRejectedTotal, m.CircuitStateGauge,
			m.PoolConnectionsOpen, m.PoolReconnectsTotal,
			m.WorkflowExecutionsTotal, m.WorkflowExecutionDuration, m.WorkflowStepsTotal, m.BudgetRejectionsTotal,
			m.WebhookDeliveriesTotal, m.SSEClientsConnected,
			m.ProcessCPUPercent, m.ProcessRSSBytes, m.ProcessOpenFDs, m.ProcessGoroutines,
		)
	}
	return m
}

// RecordToolInvocation records one completed tool call.
func (m *Metrics) RecordToolInvocation(server, tool, status string, seconds float64) {
	m.ToolInvocationsTotal.WithLabelValues(server, tool, status).Inc()
	m.ToolInvocationDuration.WithLabelValues(server, tool).Observe(seconds)
}

// RecordCacheResult records a single cache lookup outcome.
func (m *Metrics) RecordCacheResult(server string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(server).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(server).Inc()
}

// RecordRateLimitRejection records one rejected invocation for a window.
func (m *Metrics) RecordRateLimitRejection(server, window string) {
	m.RateLimitRejectedTotal.WithLabelValues(server, window).Inc()
}

// SetCircuitState publishes a server's current circuit breaker state.
func (m *Metrics) SetCircuitState(server string, state int) {
	m.CircuitStateGauge.WithLabelValues(server).Set(float64(state))
}

// SetPoolConnections publishes the live connection count for a server.
func (m *Metrics) SetPoolConnections(server, transport string, n int) {
	m.PoolConnectionsOpen.WithLabelValues(server, transport).Set(float64(n))
}

// RecordReconnect records one pool reconnect attempt.
func (m *Metrics) RecordReconnect(server string) {
	m.PoolReconnectsTotal.WithLabelValues(server).Inc()
}

// RecordWorkflowExecution records one terminated workflow execution.
func (m *Metrics) RecordWorkflowExecution(workflow, status string, seconds float64) {
	m.WorkflowExecutionsTotal.WithLabelValues(workflow, status).Inc()
	m.WorkflowExecutionDuration.WithLabelValues(workflow).Observe(seconds)
}

// RecordWorkflowStep records one completed workflow step.
func (m *Metrics) RecordWorkflowStep(workflow, status string) {
	m.WorkflowStepsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordBudgetRejection records one admission denied by a budget scope.
func (m *Metrics) RecordBudgetRejection(scope string) {
	m.BudgetRejectionsTotal.WithLabelValues(scope).Inc()
}

// RecordWebhookDelivery records one webhook delivery attempt outcome.
func (m *Metrics) RecordWebhookDelivery(outcome string) {
	m.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// SetSSEClients publishes the current number of open SSE connections.
func (m *Metrics) SetSSEClients(n int) {
	m.SSEClientsConnected.Set(float64(n))
}
