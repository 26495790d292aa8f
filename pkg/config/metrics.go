package config

import (
	"github.com/marmos91/sws/pkg/metrics"
	promMetrics "github.com/marmos91/sws/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Counter is the service counter shared by every web server run
	Counter *metrics.ServiceCounter

	// WebMetrics is the collector for the web adapter (noop if disabled)
	WebMetrics metrics.WebMetrics

	// ContentMetrics is the collector for remote content backends (noop if disabled)
	ContentMetrics metrics.ContentMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Prometheus collectors register once per process, so this must be called
// once, not per server run.
func InitializeMetrics(cfg *Config) *MetricsResult {
	counter := metrics.NewServiceCounter()

	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Counter:        counter,
			WebMetrics:     metrics.NewNoopWebMetrics(),
			ContentMetrics: metrics.NewNoopContentMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:    cfg.Metrics.Port,
		Counter: counter,
	})

	contentMetrics := metrics.NewNoopContentMetrics()
	if cfg.Content.Type == "s3" {
		contentMetrics = promMetrics.NewContentMetrics("s3")
	}

	return &MetricsResult{
		Server:         server,
		Counter:        counter,
		WebMetrics:     promMetrics.NewWebMetrics(counter),
		ContentMetrics: contentMetrics,
	}
}
