package metrics

import "time"

// WebMetrics provides observability for the web adapter.
//
// Implementations can collect metrics about connection lifecycle, admission
// decisions and responses. This interface is optional: if not provided to
// the web adapter, a no-op implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewWebMetrics(counter)
//	adapter := web.New(config, deps, m)
//
//	// Without metrics (no-op)
//	adapter := web.New(config, deps, nil)
type WebMetrics interface {
	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordAdmission records an admission verdict.
	//
	// Parameters:
	//   - allowed: whether the connection was admitted
	//   - reason: the verdict reason ("whitelisted", "throttled", ...)
	RecordAdmission(allowed bool, reason string)

	// RecordResponse records a completed exchange.
	//
	// Parameters:
	//   - status: HTTP status code written (0 when nothing could be written)
	//   - duration: time from dispatch to connection close
	//   - bytes: body bytes written
	RecordResponse(status int, duration time.Duration, bytes int64)

	// SetActiveConnections updates the number of connections being served.
	SetActiveConnections(count int32)
}

// NewNoopWebMetrics returns a WebMetrics that discards everything.
func NewNoopWebMetrics() WebMetrics {
	return noopWebMetrics{}
}

type noopWebMetrics struct{}

func (noopWebMetrics) RecordConnectionAccepted()                                  {}
func (noopWebMetrics) RecordConnectionClosed()                                    {}
func (noopWebMetrics) RecordAdmission(allowed bool, reason string)                {}
func (noopWebMetrics) RecordResponse(status int, duration time.Duration, n int64) {}
func (noopWebMetrics) SetActiveConnections(count int32)                           {}
