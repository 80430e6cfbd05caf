package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scriptbox/scriptbox/internal/sandbox"
)

// Metrics holds all Prometheus metrics. It implements sandbox.Recorder so
// the engine reports executions, host calls and restarts directly.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ExecutionsActive  prometheus.Gauge

	// Host call metrics
	HostCallsTotal   *prometheus.CounterVec
	HostCallDuration *prometheus.HistogramVec

	// Engine lifecycle metrics
	ContextRestarts prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON status endpoint.
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	TotalExecutions int64   `json:"total_executions"`
	FailedRuns      int64   `json:"failed_executions"`
	TotalHostCalls  int64   `json:"total_host_calls"`
	Restarts        int64   `json:"context_restarts"`
	TotalDuration   float64 `json:"-"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_executions_total",
				Help: "Total number of script executions",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scriptbox_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		ExecutionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbox_executions_active",
				Help: "Number of executions currently pending",
			},
		),

		HostCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_host_calls_total",
				Help: "Total number of capability host calls",
			},
			[]string{"operation", "status"},
		),
		HostCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbox_host_call_duration_seconds",
				Help:    "Capability host call duration in seconds",
				Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"operation"},
		),

		ContextRestarts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptbox_context_restarts_total",
				Help: "Total number of isolation context restarts after a crash",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbox_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbox_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordExecution implements sandbox.Recorder.
func (m *Metrics) RecordExecution(kind sandbox.ErrorKind, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = string(kind)
	}
	m.ExecutionsTotal.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(d.Seconds())

	m.mu.Lock()
	m.snapshot.TotalExecutions++
	if !success {
		m.snapshot.FailedRuns++
	}
	m.snapshot.TotalDuration += d.Seconds()
	m.mu.Unlock()
}

// RecordHostCall implements sandbox.Recorder.
func (m *Metrics) RecordHostCall(op string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.HostCallsTotal.WithLabelValues(op, status).Inc()
	m.HostCallDuration.WithLabelValues(op).Observe(d.Seconds())

	m.mu.Lock()
	m.snapshot.TotalHostCalls++
	m.mu.Unlock()
}

// RecordContextRestart implements sandbox.Recorder.
func (m *Metrics) RecordContextRestart() {
	m.ContextRestarts.Inc()

	m.mu.Lock()
	m.snapshot.Restarts++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// SetExecutionsActive sets the pending execution gauge.
func (m *Metrics) SetExecutionsActive(count int) {
	m.ExecutionsActive.Set(float64(count))
}

// GetSnapshot returns current metric values for the JSON status endpoint.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
