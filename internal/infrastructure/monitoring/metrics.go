package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recording outcomes, used as the "outcome" label.
const (
	OutcomeStarted = "started"
	OutcomeSkipped = "skipped"
	OutcomeStored  = "stored"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Outbound call metrics
	OutboundCalls    *prometheus.CounterVec
	OutboundDuration *prometheus.HistogramVec

	// Recording metrics
	Recordings *prometheus.CounterVec
	OpenCalls  prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for the health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalErrors      int64   `json:"total_errors"`
	RecordingsStored int64   `json:"recordings_stored"`
	RecordingsFailed int64   `json:"recordings_failed"`
	OpenCalls        int64   `json:"open_calls"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracing_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracing_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracing_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	// Outbound call metrics
	m.OutboundCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracing_outbound_calls_total",
			Help: "Total number of intercepted outbound calls",
		},
		[]string{"service", "method", "status"},
	)
	m.OutboundDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracing_outbound_call_duration_seconds",
			Help:    "Intercepted outbound call duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"service", "method"},
	)

	// Recording metrics
	m.Recordings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracing_recordings_total",
			Help: "Recordings by outcome",
		},
		[]string{"outcome"},
	)
	m.OpenCalls = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracing_open_calls",
			Help: "Intercepted calls started but not yet completed",
		},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tracing_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOutboundCall records a completed intercepted call
func (m *Metrics) RecordOutboundCall(service, method, status string, duration time.Duration) {
	m.OutboundCalls.WithLabelValues(service, method, status).Inc()
	m.OutboundDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordRecording counts a recording outcome
func (m *Metrics) RecordRecording(outcome string) {
	m.Recordings.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	switch outcome {
	case OutcomeStored:
		m.snapshot.RecordingsStored++
	case OutcomeFailed:
		m.snapshot.RecordingsFailed++
	}
	m.mu.Unlock()
}

// CallStarted raises the open-calls gauge
func (m *Metrics) CallStarted() {
	m.OpenCalls.Inc()
	m.mu.Lock()
	m.snapshot.OpenCalls++
	m.mu.Unlock()
}

// CallFinished lowers the open-calls gauge
func (m *Metrics) CallFinished() {
	m.OpenCalls.Dec()
	m.mu.Lock()
	m.snapshot.OpenCalls--
	m.mu.Unlock()
}

// Snapshot returns the current counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
