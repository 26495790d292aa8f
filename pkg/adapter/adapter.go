package adapter

import (
	"context"
)

// Adapter represents a protocol-specific server adapter that can be managed
// by the operator surface in pkg/server.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration and
//     its collaborators (content store, admission controller, ...)
//  2. Startup: Listen() binds the socket, Serve() runs the accept loop
//  3. Shutdown: Stop() closes the listener, Wait() drains in-flight work
//
// An adapter instance serves at most once. Restarting means building a new
// adapter.
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve() from any goroutine.
type Adapter interface {
	// Listen binds the listening socket without accepting connections yet.
	// Bind failures are returned, never retried. Calling Listen on a bound
	// adapter is a no-op.
	Listen() error

	// Serve binds if needed and runs the accept loop until Stop() is called,
	// the context is cancelled, or accepting fails.
	//
	// Returns:
	//   - nil after Stop() or context cancellation
	//   - error if binding or accepting fails
	Serve(ctx context.Context) error

	// Stop closes the listening socket. It never blocks, is idempotent and
	// does not interrupt connections already being handled.
	Stop()

	// IsStopped reports whether the listening socket is closed. It is true
	// before the first successful Listen.
	IsStopped() bool

	// Wait blocks until every accepted connection has been handled or ctx
	// is done. It returns immediately if Serve was never called.
	Wait(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the bound TCP port, or the configured port before binding.
	Port() int
}
