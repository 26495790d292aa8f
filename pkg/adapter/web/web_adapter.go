// Package web implements the HTTP adapter: a TCP listener that screens every
// connection through the admission controller and hands admitted ones to a
// fixed pool of workers, each of which serves exactly one request.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/internal/protocol/http"
	"github.com/marmos91/sws/pkg/adapter"
	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/content"
	"github.com/marmos91/sws/pkg/credentials"
	"github.com/marmos91/sws/pkg/metrics"
	"github.com/sourcegraph/conc"
)

// ErrStopped is returned by Listen and Serve once the adapter was stopped.
var ErrStopped = errors.New("web adapter stopped")

// WebAdapter implements the adapter.Adapter interface for HTTP.
//
// Architecture:
// One goroutine runs the accept loop. It performs only the in-memory
// admission check and then enqueues the connection on a bounded channel
// drained by a fixed number of workers. A full queue blocks the accept loop,
// which is the only backpressure applied.
//
// Shutdown flow:
//  1. Stop() is called or the Serve context is cancelled
//  2. The listener is closed, unblocking Accept
//  3. The accept loop exits and closes the job queue
//  4. Workers finish every queued and in-flight connection, then exit
//  5. Wait() returns
//
// Handlers are never cancelled by shutdown: they run with a context that is
// detached from the Serve context.
//
// Thread safety:
// All methods are safe for concurrent use. Stop uses sync.Once.
type WebAdapter struct {
	// config holds the server configuration (port, pool size, timeouts)
	config WebConfig

	// deps are the collaborators consulted for every connection
	deps Dependencies

	// metrics provides optional Prometheus metrics collection
	metrics metrics.WebMetrics

	// mu guards listener and port
	mu       sync.Mutex
	listener net.Listener
	port     int

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown is closed by Stop()
	shutdown chan struct{}

	// serving is set once Serve has started its workers
	serving atomic.Bool

	// drained is closed when every worker has exited
	drained chan struct{}

	// connCount tracks the number of connections being handled
	connCount atomic.Int32
}

// WebConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Workers: 10
//   - QueueSize: 64
//   - DefaultDocument: index.html
//   - Realm: sws
//   - UnauthorizedDocument: 401.html
//   - ForbiddenDocument: 403.html
//   - ReservedNames: passwd, permission
//
// Port 0 binds an ephemeral port. Timeouts default to 0, meaning a slow
// client can hold a worker indefinitely.
type WebConfig struct {
	// Port is the TCP port to listen on. 0 lets the OS choose.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BindAddress restricts the listener to one local address. Empty
	// listens on all interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Workers is the number of goroutines serving connections.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// QueueSize bounds the admitted connections waiting for a worker.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=0"`

	// DefaultDocument is served for directory targets.
	DefaultDocument string `mapstructure:"default_document" yaml:"default_document"`

	// Realm is announced in digest challenges.
	Realm string `mapstructure:"realm" yaml:"realm"`

	// UnauthorizedDocument and ForbiddenDocument are the bodies of 401 and
	// 403 responses, resolved under the served root.
	UnauthorizedDocument string `mapstructure:"unauthorized_document" yaml:"unauthorized_document"`
	ForbiddenDocument    string `mapstructure:"forbidden_document" yaml:"forbidden_document"`

	// ReservedNames are path fragments that are always answered with 403.
	ReservedNames []string `mapstructure:"reserved_names" yaml:"reserved_names"`

	// ReadTimeout bounds reading the request head. 0 means no timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing the response. 0 means no timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which served connections,
	// service rate and active connections are logged. 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *WebConfig) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 10
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.DefaultDocument == "" {
		c.DefaultDocument = http.DefaultFile
	}
	if c.Realm == "" {
		c.Realm = "sws"
	}
	if c.UnauthorizedDocument == "" {
		c.UnauthorizedDocument = "401.html"
	}
	if c.ForbiddenDocument == "" {
		c.ForbiddenDocument = "403.html"
	}
	if c.ReservedNames == nil {
		c.ReservedNames = credentials.DefaultReservedNames
	}
}

// validate checks that the configuration is usable.
func (c *WebConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid Workers %d: must be >= 1", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("invalid QueueSize %d: must be >= 0", c.QueueSize)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("invalid MetricsLogInterval %v: must be >= 0", c.MetricsLogInterval)
	}
	return nil
}

// Dependencies are the collaborators shared by every connection.
type Dependencies struct {
	// Content resolves documents. Required.
	Content content.ContentStore

	// Credentials resolves digest secrets and allow-lists. Nil means no
	// users and no protected paths.
	Credentials credentials.Store

	// Admission screens connections. Nil admits everything.
	Admission *admission.Controller

	// Counter accumulates served connections and service time. Nil creates
	// a private counter.
	Counter *metrics.ServiceCounter
}

var _ adapter.Adapter = (*WebAdapter)(nil)

// New creates a new WebAdapter in a stopped, unbound state.
//
// Parameters:
//   - config: Server configuration; zero values are replaced with defaults
//   - deps: Collaborators; Content is required
//   - webMetrics: Optional metrics collector (nil for no metrics)
//
// Returns an error if the configuration is invalid or Content is missing.
func New(config WebConfig, deps Dependencies, webMetrics metrics.WebMetrics) (*WebAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid web config: %w", err)
	}

	if deps.Content == nil {
		return nil, fmt.Errorf("invalid web config: content store is required")
	}
	if deps.Credentials == nil {
		deps.Credentials = credentials.NewMemoryStore()
	}
	if deps.Counter == nil {
		deps.Counter = metrics.NewServiceCounter()
	}
	if webMetrics == nil {
		webMetrics = metrics.NewNoopWebMetrics()
	}

	return &WebAdapter{
		config:   config,
		deps:     deps,
		metrics:  webMetrics,
		port:     config.Port,
		shutdown: make(chan struct{}),
		drained:  make(chan struct{}),
	}, nil
}

// Listen binds the listening socket.
func (s *WebAdapter) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	select {
	case <-s.shutdown:
		return ErrStopped
	default:
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create web listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}

	logger.Info("Web server listening on %s", listener.Addr())
	logger.Debug("Web config: workers=%d queue_size=%d read_timeout=%v write_timeout=%v",
		s.config.Workers, s.config.QueueSize, s.config.ReadTimeout, s.config.WriteTimeout)
	return nil
}

// Serve runs the accept loop until Stop(), context cancellation, or a fatal
// accept error. It returns as soon as the loop exits; use Wait to drain the
// connections that were already admitted.
//
// Parameters:
//   - ctx: Controls the accept loop. Cancellation behaves like Stop().
//
// Returns:
//   - nil after Stop() or context cancellation
//   - error if binding fails or Accept fails for any other reason
//
// Thread safety:
// Serve must be called at most once per WebAdapter.
func (s *WebAdapter) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	if !s.serving.CompareAndSwap(false, true) {
		return fmt.Errorf("web adapter is already serving")
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	jobs := make(chan net.Conn, s.config.QueueSize)
	handlerCtx := context.WithoutCancel(ctx)

	var workers conc.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		workers.Go(func() {
			for conn := range jobs {
				s.handle(handlerCtx, conn)
			}
		})
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	// Monitor context cancellation so the accept loop can stay focused on Accept
	go func() {
		select {
		case <-loopCtx.Done():
			if ctx.Err() != nil {
				logger.Info("Web shutdown signal received: %v", ctx.Err())
				s.Stop()
			}
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(loopCtx)
	}

	err := s.acceptLoop(listener, jobs)

	close(jobs)
	go func() {
		workers.Wait()
		close(s.drained)
		logger.Debug("Web workers drained")
	}()

	return err
}

func (s *WebAdapter) acceptLoop(listener net.Listener, jobs chan<- net.Conn) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				// Expected: the listener was closed by Stop()
				logger.Info("Web server stopped accepting connections")
				return nil
			default:
			}
			s.Stop()
			return fmt.Errorf("failed to accept web connection: %w", err)
		}

		s.metrics.RecordConnectionAccepted()

		if s.deps.Admission != nil {
			addr := admission.AddressOf(conn.RemoteAddr())
			verdict := s.deps.Admission.Admit(addr)
			s.metrics.RecordAdmission(verdict.Allowed, string(verdict.Reason))
			if !verdict.Allowed {
				logger.Debug("Connection from %s refused (%s)", addr, verdict.Reason)
				_ = conn.Close()
				s.metrics.RecordConnectionClosed()
				continue
			}
		}

		select {
		case jobs <- conn:
		case <-s.shutdown:
			logger.Debug("Dropping connection from %s accepted during shutdown", conn.RemoteAddr())
			_ = conn.Close()
			s.metrics.RecordConnectionClosed()
			return nil
		}
	}
}

// handle serves one admitted connection on a worker goroutine.
func (s *WebAdapter) handle(ctx context.Context, conn net.Conn) {
	current := s.connCount.Add(1)
	s.metrics.SetActiveConnections(current)
	logger.Debug("Web connection from %s dispatched (active: %d)", conn.RemoteAddr(), current)

	defer func() {
		current := s.connCount.Add(-1)
		s.metrics.RecordConnectionClosed()
		s.metrics.SetActiveConnections(current)
	}()

	NewWebConnection(s, conn).Serve(ctx)
}

// Stop closes the listening socket. Safe to call multiple times, from any
// goroutine, before or after Serve.
func (s *WebAdapter) Stop() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Web shutdown initiated")
		close(s.shutdown)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing web listener: %v", err)
			}
		}
	})
}

// IsStopped reports whether the listening socket is closed (or was never
// opened).
func (s *WebAdapter) IsStopped() bool {
	s.mu.Lock()
	bound := s.listener != nil
	s.mu.Unlock()

	if !bound {
		return true
	}
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Wait blocks until every admitted connection has been handled, or ctx is
// done. Call it after Stop().
func (s *WebAdapter) Wait(ctx context.Context) error {
	if !s.serving.Load() {
		return nil
	}

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		logger.Warn("Web drain interrupted: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs served connections, service rate and active
// connections until ctx is done.
func (s *WebAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			served, _ := s.deps.Counter.Snapshot()
			logger.Info("Web metrics: served=%d service_rate=%.2f/s active_connections=%d",
				served, s.deps.Counter.ServiceRate(), s.connCount.Load())
		}
	}
}

// ActiveConnections returns the number of connections being handled.
func (s *WebAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Counter returns the service counter updated by this adapter.
func (s *WebAdapter) Counter() *metrics.ServiceCounter {
	return s.deps.Counter
}

// Addr returns the bound address, or nil before Listen.
func (s *WebAdapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or the configured port before Listen.
func (s *WebAdapter) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Protocol returns "HTTP".
func (s *WebAdapter) Protocol() string {
	return "HTTP"
}
