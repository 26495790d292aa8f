// Package metrics provides the service counter behind the server's service
// rate and the optional Prometheus instrumentation of the web adapter and the
// content stores.
//
// Prometheus metrics are optional: until InitRegistry is called the
// constructors in pkg/metrics/prometheus return no-op implementations. The
// ServiceCounter is always active because the operator surface reports the
// service rate from it.
//
// Usage:
//
//	metrics.InitRegistry()
//	webMetrics := prometheus.NewWebMetrics(counter)
//	adapter, err := web.New(config, deps, webMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read-only afterwards
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry and registers the Go
// runtime and process collectors on it. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
