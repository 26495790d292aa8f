package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/sws/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// webMetrics is the Prometheus implementation of metrics.WebMetrics.
type webMetrics struct {
	responsesTotal      *prometheus.CounterVec
	responseDuration    *prometheus.HistogramVec
	bytesServed         prometheus.Counter
	admissionsTotal     *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewWebMetrics creates a new Prometheus-backed WebMetrics instance.
//
// When counter is non-nil its served connection count and service rate are
// exported as gauges read at scrape time.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewWebMetrics(counter *metrics.ServiceCounter) metrics.WebMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopWebMetrics()
	}

	reg := metrics.GetRegistry()

	if counter != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "sws_service_rate",
				Help: "Served connections per second of cumulative service time",
			},
			counter.ServiceRate,
		)
		promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Name: "sws_service_time_seconds_total",
				Help: "Cumulative wall-clock time spent serving connections",
			},
			func() float64 {
				_, d := counter.Snapshot()
				return d.Seconds()
			},
		)
	}

	return &webMetrics{
		responsesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sws_http_responses_total",
				Help: "Total number of responses by status code",
			},
			[]string{"status"},
		),
		responseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sws_http_response_duration_milliseconds",
				Help: "Duration of connection handling in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"status"},
		),
		bytesServed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sws_http_bytes_served_total",
				Help: "Total response body bytes written",
			},
		),
		admissionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sws_admissions_total",
				Help: "Total admission decisions by verdict and reason",
			},
			[]string{"verdict", "reason"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "sws_active_connections",
				Help: "Current number of connections being served",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sws_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sws_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
	}
}

func (m *webMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *webMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *webMetrics) RecordAdmission(allowed bool, reason string) {
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	m.admissionsTotal.WithLabelValues(verdict, reason).Inc()
}

func (m *webMetrics) RecordResponse(status int, duration time.Duration, bytes int64) {
	code := strconv.Itoa(status)
	m.responsesTotal.WithLabelValues(code).Inc()
	m.responseDuration.WithLabelValues(code).Observe(duration.Seconds() * 1000) // Convert to milliseconds
	if bytes > 0 {
		m.bytesServed.Add(float64(bytes))
	}
}

func (m *webMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}
