package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/adapter/web"
	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/content"
	"github.com/marmos91/sws/pkg/content/fs"
	"github.com/marmos91/sws/pkg/credentials"
	"github.com/marmos91/sws/pkg/metrics"
)

var (
	// ErrAlreadyRunning is returned by Start while a previous run is listening.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrNotRunning is returned by Stop when nothing is listening.
	ErrNotRunning = errors.New("server is not running")
)

// ContentFactory opens the content store that serves rootDir.
type ContentFactory func(ctx context.Context, rootDir string) (content.ContentStore, error)

// FilesystemContent serves rootDir from the local filesystem and creates the
// reserved response documents when they are missing.
func FilesystemContent(reserved ...string) ContentFactory {
	return func(ctx context.Context, rootDir string) (content.ContentStore, error) {
		store, err := fs.NewFSContentStore(ctx, rootDir)
		if err != nil {
			return nil, err
		}
		for _, name := range reserved {
			if err := store.EnsureDocument(name); err != nil {
				logger.Warn("Cannot create %s under %s: %v", name, store.Root(), err)
			}
		}
		return store, nil
	}
}

// Config wires a Server.
type Config struct {
	// Web is the adapter configuration. Port is overridden by Start.
	Web web.WebConfig

	// Content opens the store for each run. Nil serves the local
	// filesystem with the configured 401/403 documents.
	Content ContentFactory

	// Credentials are shared by every run. Nil means no users and no
	// protected paths.
	Credentials credentials.Store

	// Admission is shared by every run so that address lists and tunables
	// outlive restarts. Nil creates an in-memory controller with defaults.
	Admission *admission.Controller

	// Metrics must be created once per process. Nil disables collection.
	Metrics metrics.WebMetrics

	// Counter accumulates served connections over every run. Nil creates
	// one; pass the counter the Metrics collectors read from.
	Counter *metrics.ServiceCounter
}

// Server is the operator surface: it owns the admission controller and the
// service counter, and starts and stops web adapter runs on demand.
//
// Lifecycle:
//  1. New() with the shared collaborators
//  2. Start(root, port) binds synchronously and serves in the background
//  3. Stop() closes the listener; Wait() drains the admitted connections
//  4. Start() may be called again for a new run
//
// Thread safety:
// All methods are safe for concurrent use.
type Server struct {
	cfg       Config
	admission *admission.Controller
	counter   *metrics.ServiceCounter

	mu   sync.Mutex
	run  *run
	last *run
}

// run is one Start/Stop cycle.
type run struct {
	adapter *web.WebAdapter
	store   content.ContentStore
	root    string
	started time.Time

	done chan struct{}
	err  error
}

// New creates a stopped Server.
func New(cfg Config) (*Server, error) {
	ctrl := cfg.Admission
	if ctrl == nil {
		var err error
		ctrl, err = admission.New(context.Background(), admission.Config{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create admission controller: %w", err)
		}
	}
	if cfg.Content == nil {
		unauthorized, forbidden := cfg.Web.UnauthorizedDocument, cfg.Web.ForbiddenDocument
		if unauthorized == "" {
			unauthorized = "401.html"
		}
		if forbidden == "" {
			forbidden = "403.html"
		}
		cfg.Content = FilesystemContent(unauthorized, forbidden)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.NewMemoryStore()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopWebMetrics()
	}

	if cfg.Counter == nil {
		cfg.Counter = metrics.NewServiceCounter()
	}

	return &Server{
		cfg:       cfg,
		admission: ctrl,
		counter:   cfg.Counter,
	}, nil
}

// Start opens the content store for rootDir, binds port (0 for an ephemeral
// port) and serves in the background. Bind and store errors are returned.
func (s *Server) Start(rootDir string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && !s.run.adapter.IsStopped() {
		return ErrAlreadyRunning
	}

	ctx := context.Background()

	store, err := s.cfg.Content(ctx, rootDir)
	if err != nil {
		return fmt.Errorf("failed to open content root %q: %w", rootDir, err)
	}

	webCfg := s.cfg.Web
	webCfg.Port = port

	a, err := web.New(webCfg, web.Dependencies{
		Content:     store,
		Credentials: s.cfg.Credentials,
		Admission:   s.admission,
		Counter:     s.counter,
	}, s.cfg.Metrics)
	if err != nil {
		_ = store.Close()
		return err
	}

	if err := a.Listen(); err != nil {
		_ = store.Close()
		return err
	}

	r := &run{
		adapter: a,
		store:   store,
		root:    rootDir,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.run = r
	s.last = r

	go s.serve(ctx, r)

	logger.Info("Serving %s on port %d", rootDir, a.Port())
	return nil
}

func (s *Server) serve(ctx context.Context, r *run) {
	defer close(r.done)

	if err := r.adapter.Serve(ctx); err != nil {
		logger.Error("Web server failed: %v", err)
		r.err = err
	}

	// Handlers are never cancelled; the drain ends when the last one returns
	if err := r.adapter.Wait(ctx); err != nil {
		logger.Warn("Web drain ended early: %v", err)
	}

	if err := r.store.Close(); err != nil {
		logger.Warn("Error closing content store: %v", err)
	}

	logger.Info("Web server on port %d stopped after %v", r.adapter.Port(), time.Since(r.started).Round(time.Millisecond))
}

// Stop closes the listening socket. Connections already admitted still run
// to completion; use Wait to block until they have.
//
// Returns ErrNotRunning if nothing is listening. Calling Stop twice is safe.
func (s *Server) Stop() error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r == nil || r.adapter.IsStopped() {
		return ErrNotRunning
	}

	logger.Info("Stopping web server on port %d", r.adapter.Port())
	r.adapter.Stop()
	return nil
}

// IsStopped reports whether no listening socket is open.
func (s *Server) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run == nil || s.run.adapter.IsStopped()
}

// Wait blocks until the latest run has drained, or ctx is done. It returns
// immediately if Start was never called.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the latest run has fully stopped.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.last.done
}

// Err returns the fatal error of the latest run, if it has stopped because
// of one.
func (s *Server) Err() error {
	s.mu.Lock()
	r := s.last
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Port returns the bound port of the latest run, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return 0
	}
	return s.last.adapter.Port()
}

// Status is a point-in-time view of the server.
type Status struct {
	Running           bool          `json:"running"`
	Root              string        `json:"root,omitempty"`
	Port              int           `json:"port,omitempty"`
	Served            uint64        `json:"served"`
	ServiceTime       time.Duration `json:"service_time_ns"`
	ServiceRate       float64       `json:"service_rate"`
	ActiveConnections int32         `json:"active_connections"`
	SampleSize        int           `json:"sample_size"`
	TimeThreshold     time.Duration `json:"time_threshold_ns"`
}

// Status returns the current state and counters.
func (s *Server) Status() Status {
	served, serviceTime := s.counter.Snapshot()
	st := Status{
		Served:        served,
		ServiceTime:   serviceTime,
		ServiceRate:   s.counter.ServiceRate(),
		SampleSize:    s.admission.SampleSize(),
		TimeThreshold: s.admission.TimeThreshold(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		st.Running = !s.run.adapter.IsStopped()
		st.Root = s.run.root
		st.Port = s.run.adapter.Port()
		st.ActiveConnections = s.run.adapter.ActiveConnections()
	}
	return st
}

// ServiceRate returns served connections per second of service time,
// accumulated over every run.
func (s *Server) ServiceRate() float64 {
	return s.counter.ServiceRate()
}

// Counter returns the service counter shared by every run.
func (s *Server) Counter() *metrics.ServiceCounter {
	return s.counter
}

// Admission returns the shared admission controller.
func (s *Server) Admission() *admission.Controller {
	return s.admission
}

func (s *Server) WhitelistAddress(addr string) error {
	return s.admission.Whitelist(addr)
}

func (s *Server) BlacklistAddress(addr string) error {
	return s.admission.Blacklist(addr)
}

func (s *Server) UnwhitelistAddress(addr string) error {
	return s.admission.Unwhitelist(addr)
}

func (s *Server) UnblacklistAddress(addr string) error {
	return s.admission.Unblacklist(addr)
}

func (s *Server) SetSampleSize(n int) error {
	return s.admission.SetSampleSize(n)
}

func (s *Server) SetTimeThreshold(d time.Duration) error {
	return s.admission.SetTimeThreshold(d)
}

func (s *Server) SampleSize() int {
	return s.admission.SampleSize()
}

func (s *Server) TimeThreshold() time.Duration {
	return s.admission.TimeThreshold()
}

// Whitelist returns the allowed addresses, sorted.
func (s *Server) Whitelist() []string {
	return s.admission.Whitelisted()
}

// Blacklist returns the denied addresses, sorted.
func (s *Server) Blacklist() []string {
	return s.admission.Blacklisted()
}

// Close stops any run, waits up to ctx for it to drain and closes the
// admission controller.
func (s *Server) Close(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	waitErr := s.Wait(ctx)
	if err := s.admission.Close(); err != nil {
		return fmt.Errorf("failed to close admission controller: %w", err)
	}
	return waitErr
}
