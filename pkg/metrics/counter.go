package metrics

import (
	"sync"
	"time"
)

// ServiceCounter accumulates the number of served connections and the total
// wall-clock time spent serving them. Both values only grow.
//
// One mutex guards both fields so that a reader always observes a consistent
// pair.
type ServiceCounter struct {
	mu          sync.Mutex
	connections uint64
	serviceTime time.Duration
}

// NewServiceCounter returns a zeroed counter.
func NewServiceCounter() *ServiceCounter {
	return &ServiceCounter{}
}

// Record adds one served connection that took d.
func (c *ServiceCounter) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	c.connections++
	c.serviceTime += d
	c.mu.Unlock()
}

// Snapshot returns the served connection count and cumulative service time.
func (c *ServiceCounter) Snapshot() (connections uint64, serviceTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections, c.serviceTime
}

// ServiceRate returns served connections per second of cumulative service
// time. It is 0 until some service time has been recorded.
func (c *ServiceCounter) ServiceRate() float64 {
	connections, serviceTime := c.Snapshot()
	if serviceTime <= 0 {
		return 0
	}
	return float64(connections) / serviceTime.Seconds()
}
