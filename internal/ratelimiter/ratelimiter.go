// Package ratelimiter throttles operator requests with token buckets.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every caller.
//
// Tokens are added at a constant rate and each request consumes one. When
// the bucket is empty, Allow rejects. Burst is the bucket capacity.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter refilling at requestsPerSecond with the given
// burst capacity. requestsPerSecond = 0 disables limiting. A zero burst with
// a non-zero rate is raised to 1 so that requests can ever pass.
func New(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: newLimiter(requestsPerSecond, burst)}
}

func newLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Allow consumes a token if one is available. It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// RetryAfter returns how long a caller that was just rejected should wait
// before one token is available again.
func (r *RateLimiter) RetryAfter() time.Duration {
	return retryAfter(r.limiter)
}

func retryAfter(l *rate.Limiter) time.Duration {
	if l.Limit() == rate.Inf {
		return 0
	}
	missing := 1 - l.Tokens()
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.Limit()) * float64(time.Second))
}

// KeyedLimiter keeps one token bucket per key (typically a client address).
// Buckets idle for longer than the idle timeout are dropped by Sweep.
type KeyedLimiter struct {
	rps   float64
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyed returns a KeyedLimiter. idle <= 0 keeps buckets forever.
func NewKeyed(requestsPerSecond float64, burst int, idle time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		rps:     requestsPerSecond,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
	}
}

func (k *KeyedLimiter) get(key string, now time.Time) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: newLimiter(k.rps, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Allow consumes a token from key's bucket if one is available.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.get(key, time.Now()).Allow()
}

// RetryAfter returns how long key should wait for its next token.
func (k *KeyedLimiter) RetryAfter(key string) time.Duration {
	return retryAfter(k.get(key, time.Now()))
}

// Sweep drops buckets not used since now minus the idle timeout and returns
// how many were dropped.
func (k *KeyedLimiter) Sweep(now time.Time) int {
	if k.idle <= 0 {
		return 0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	dropped := 0
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idle {
			delete(k.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
