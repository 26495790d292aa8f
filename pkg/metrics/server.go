package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marmos91/sws/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the metrics listener port used when none is configured.
const DefaultPort = 9090

// Server exposes the scrape endpoint and a liveness probe:
//
//   - GET /metrics: Prometheus text/OpenMetrics exposition
//   - GET /healthz: JSON summary of the service counter
type Server struct {
	server       *http.Server
	counter      *ServiceCounter
	port         int
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics listener.
type ServerConfig struct {
	// Port to listen on. Zero means DefaultPort.
	Port int

	// BindAddress restricts the listener to one interface. Empty binds all.
	BindAddress string

	// Counter backs /healthz. Nil reports zeros.
	Counter *ServiceCounter
}

// NewServer builds a metrics server. Nothing is bound until Start.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	s := &Server{
		counter: config.Counter,
		port:    config.Port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", s.handleMetrics())
	r.Get("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:         net.JoinHostPort(config.BindAddress, fmt.Sprint(config.Port)),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleMetrics() http.HandlerFunc {
	reg := GetRegistry()
	if reg == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		}
	}
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return h.ServeHTTP
}

type healthResponse struct {
	Status      string  `json:"status"`
	Served      uint64  `json:"served"`
	ServiceRate float64 `json:"service_rate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.counter != nil {
		resp.Served, _ = s.counter.Snapshot()
		resp.ServiceRate = s.counter.ServiceRate()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Debug("Failed to write health response: %v", err)
	}
}

// Handler returns the router, for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down with a five second
// grace period.
//
// Returns nil on graceful shutdown, or an error if the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call multiple times and concurrently
// with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}
