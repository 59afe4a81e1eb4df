package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge. Each instance owns
// its registry, so independent servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Instruction metrics
	InstructionsSent   *prometheus.CounterVec
	InstructionsFailed *prometheus.CounterVec

	// Context metrics
	ContextsReceived prometheus.Counter
	ContextsAnalyzed prometheus.Counter

	// Screenshot metrics
	ScreenshotsStored prometheus.Counter
	ScreenshotsDenied prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	InstructionsSent  int64   `json:"instructions_sent"`
	ContextsReceived  int64   `json:"contexts_received"`
	AvgRequestSeconds float64 `json:"avg_request_seconds"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
	requestCount  int64
}

// New creates the metrics collector and starts the uptime updater.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		InstructionsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_instructions_sent_total",
				Help: "Total number of instructions pushed to clients",
			},
			[]string{"type"},
		),
		InstructionsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_instructions_failed_total",
				Help: "Total number of instruction delivery failures",
			},
			[]string{"type"},
		),

		ContextsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_contexts_received_total",
				Help: "Total number of page contexts received",
			},
		),
		ContextsAnalyzed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_contexts_analyzed_total",
				Help: "Total number of page contexts analyzed",
			},
		),

		ScreenshotsStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_screenshots_stored_total",
				Help: "Total number of screenshots stored",
			},
		),
		ScreenshotsDenied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_screenshots_denied_total",
				Help: "Total number of screenshot requests denied by the whitelist",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_uptime_seconds",
				Help: "Bridge uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

// Handler serves the Prometheus exposition for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	m.snapshot.requestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordConnection tracks a WebSocket connection opening or closing.
func (m *Metrics) RecordConnection(delta int) {
	m.WSConnections.Add(float64(delta))

	m.mu.Lock()
	m.snapshot.ActiveConnections += int64(delta)
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message by direction and type.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordInstruction records an instruction push.
func (m *Metrics) RecordInstruction(instructionType string) {
	m.InstructionsSent.WithLabelValues(instructionType).Inc()

	m.mu.Lock()
	m.snapshot.InstructionsSent++
	m.mu.Unlock()
}

// RecordInstructionFailure records a delivery failure.
func (m *Metrics) RecordInstructionFailure(instructionType string) {
	m.InstructionsFailed.WithLabelValues(instructionType).Inc()
}

// RecordContext records a received page context.
func (m *Metrics) RecordContext() {
	m.ContextsReceived.Inc()

	m.mu.Lock()
	m.snapshot.ContextsReceived++
	m.mu.Unlock()
}

// RecordAnalysis records a completed context analysis.
func (m *Metrics) RecordAnalysis() {
	m.ContextsAnalyzed.Inc()
}

// RecordScreenshot records a stored or denied screenshot.
func (m *Metrics) RecordScreenshot(allowed bool) {
	if allowed {
		m.ScreenshotsStored.Inc()
	} else {
		m.ScreenshotsDenied.Inc()
	}
}

// GetSnapshot returns current values for the JSON health endpoint.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()

	if snap.requestCount > 0 {
		snap.AvgRequestSeconds = snap.totalDuration / float64(snap.requestCount)
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
