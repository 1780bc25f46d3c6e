package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Broker metrics
	ContextsCreated prometheus.Counter
	ProxyCalls      *prometheus.CounterVec // labels: kind (get_output/query), outcome
	ProxyDuration   *prometheus.HistogramVec

	// Module loader metrics
	ModuleLoads *prometheus.CounterVec // labels: runtime (js/native), outcome

	// Notification metrics
	NotificationsSent prometheus.Counter
	WSConnections     prometheus.Gauge

	// Scheduler metrics
	JobsActive prometheus.Gauge
	JobRuns    *prometheus.CounterVec // labels: outcome

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		ContextsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lattice_broker_contexts_created_total",
				Help: "Total capability bundles constructed",
			},
		),
		ProxyCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_broker_proxy_calls_total",
				Help: "Inter-app proxy calls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ProxyDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_broker_proxy_duration_seconds",
				Help:    "Inter-app proxy call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		ModuleLoads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_module_loads_total",
				Help: "App module loads by runtime and outcome",
			},
			[]string{"runtime", "outcome"},
		),

		NotificationsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lattice_notifications_sent_total",
				Help: "Notifications published to the hub",
			},
		),
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lattice_ws_connections",
				Help: "Active WebSocket notification connections",
			},
		),

		JobsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lattice_scheduler_jobs_active",
				Help: "Scheduled jobs currently registered",
			},
		),
		JobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_scheduler_job_runs_total",
				Help: "Scheduled job runs by outcome",
			},
			[]string{"outcome"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lattice_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.trackUptime()
	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

func (m *Metrics) trackUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}
