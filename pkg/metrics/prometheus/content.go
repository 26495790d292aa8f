package prometheus

import (
	"time"

	"github.com/marmos91/sws/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// contentMetrics is the Prometheus implementation of metrics.ContentMetrics.
type contentMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewContentMetrics creates Prometheus-backed ContentMetrics for the named
// backend (e.g. "s3").
//
// Returns a no-op implementation if metrics are not enabled.
func NewContentMetrics(backend string) metrics.ContentMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopContentMetrics()
	}

	reg := prometheus.WrapRegistererWith(prometheus.Labels{"backend": backend}, metrics.GetRegistry())

	return &contentMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sws_content_operations_total",
				Help: "Total number of content backend operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sws_content_operation_duration_seconds",
				Help: "Duration of content backend operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *contentMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
