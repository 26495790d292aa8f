package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/internal/ratelimiter"
)

// Config configures the admin API server.
type Config struct {
	// Enabled controls whether the admin API is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port to listen on. Default: 8081
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BindAddress restricts the listener. Default: 127.0.0.1
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// RateLimit is the sustained requests per second allowed per client.
	// 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"min=0"`

	// Burst is the per-client bucket capacity.
	Burst int `mapstructure:"burst" yaml:"burst" validate:"min=0"`

	// GlobalRateLimit is the sustained requests per second allowed across
	// all clients. 0 disables the global bucket.
	GlobalRateLimit float64 `mapstructure:"global_rate_limit" yaml:"global_rate_limit" validate:"min=0"`

	// GlobalBurst is the global bucket capacity.
	GlobalBurst int `mapstructure:"global_burst" yaml:"global_burst" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8081
	}
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
}

// Server serves the admin API.
type Server struct {
	server       *http.Server
	limiter      *ratelimiter.KeyedLimiter
	port         int
	shutdownOnce sync.Once
}

// NewServer creates a stopped admin API server driving op.
func NewServer(config Config, op Operator, defaults Defaults) *Server {
	config.applyDefaults()

	var limits Limits
	if config.RateLimit > 0 {
		limits.PerClient = ratelimiter.NewKeyed(config.RateLimit, config.Burst, 10*time.Minute)
	}
	if config.GlobalRateLimit > 0 {
		limits.Global = ratelimiter.New(config.GlobalRateLimit, config.GlobalBurst)
	}

	return &Server{
		server: &http.Server{
			Addr:         net.JoinHostPort(config.BindAddress, strconv.Itoa(config.Port)),
			Handler:      NewRouter(op, defaults, limits),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		limiter: limits.PerClient,
		port:    config.Port,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns nil on graceful shutdown, or an error if the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Admin API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.limiter != nil {
		go s.sweep(ctx)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("admin API server failed: %w", err)
	}
}

// sweep drops idle client buckets once a minute.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.limiter.Sweep(now); n > 0 {
				logger.Debug("Admin API: dropped %d idle rate limit bucket(s)", n)
			}
		}
	}
}

// Stop shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("admin API shutdown error: %w", err)
			logger.Error("Admin API shutdown error: %v", err)
			return
		}
		logger.Info("Admin API stopped")
	})
	return shutdownErr
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}
