package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/internal/ratelimiter"
)

// Limits throttles admin requests. Either bucket may be nil.
type Limits struct {
	// Global is shared by every client.
	Global *ratelimiter.RateLimiter

	// PerClient keeps one bucket per remote IP.
	PerClient *ratelimiter.KeyedLimiter
}

// RateLimit rejects requests with 429 once the client's bucket or the
// global bucket is empty. Clients are keyed by remote IP; forwarding headers
// are not trusted.
func RateLimit(limits Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			// A request rejected per client does not consume the global bucket
			if limits.PerClient != nil && !limits.PerClient.Allow(ip) {
				logger.Debug("Admin API: throttling %s", ip)
				tooManyRequests(w, limits.PerClient.RetryAfter(ip))
				return
			}
			if limits.Global != nil && !limits.Global.Allow() {
				logger.Debug("Admin API: global request budget exhausted, rejecting %s", ip)
				tooManyRequests(w, limits.Global.RetryAfter())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
