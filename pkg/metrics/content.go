package metrics

import "time"

// ContentMetrics provides observability for remote content store backends.
type ContentMetrics interface {
	// ObserveOperation records one backend call.
	//
	// Parameters:
	//   - operation: backend operation name (e.g. "HeadObject")
	//   - duration: time taken
	//   - err: error returned by the backend, nil on success
	ObserveOperation(operation string, duration time.Duration, err error)
}

// NewNoopContentMetrics returns a ContentMetrics that discards everything.
func NewNoopContentMetrics() ContentMetrics {
	return noopContentMetrics{}
}

type noopContentMetrics struct{}

func (noopContentMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
