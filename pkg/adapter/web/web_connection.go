package web

import (
	"context"
	"errors"
	"io"
	"net"
	"path"
	"time"

	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/internal/protocol/http"
	"github.com/marmos91/sws/pkg/auth"
	"github.com/marmos91/sws/pkg/content"
	"github.com/marmos91/sws/pkg/credentials"
)

// WebConnection serves exactly one request on one admitted connection.
type WebConnection struct {
	server *WebAdapter
	conn   net.Conn

	// principal is the user bound by a verified digest, empty otherwise
	principal string
}

func NewWebConnection(server *WebAdapter, conn net.Conn) *WebConnection {
	return &WebConnection{
		server: server,
		conn:   conn,
	}
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Serve reads one request, writes one response and closes the connection.
//
// Whatever happens in between (a parse error, a write error, a panic), the
// connection is closed and the service counter is updated exactly once with
// the elapsed wall-clock time.
func (c *WebConnection) Serve(ctx context.Context) {
	start := time.Now()
	clientAddr := c.conn.RemoteAddr().String()
	status := 0
	out := &countingWriter{w: c.conn}

	defer func() {
		// Panic recovery - prevents a single connection from crashing the server
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v", clientAddr, r)
		}
		_ = c.conn.Close()

		elapsed := time.Since(start)
		c.server.deps.Counter.Record(elapsed)
		if status != 0 {
			c.server.metrics.RecordResponse(status, elapsed, out.n)
		}
	}()

	logger.Debug("Serving connection from %s", clientAddr)

	if c.server.config.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout)); err != nil {
			logger.Warn("Failed to set read deadline for %s: %v", clientAddr, err)
		}
	}

	resp := c.process(ctx)
	status = resp.Status

	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			logger.Warn("Failed to set write deadline for %s: %v", clientAddr, err)
		}
	}

	if err := resp.Write(out); err != nil {
		logger.Debug("Error writing response to %s: %v", clientAddr, err)
		return
	}

	logger.Debug("Served %d to %s (%d bytes, %v)", status, clientAddr, out.n, time.Since(start))
}

// process runs the request through read, validate, authenticate, authorize
// and resolve. It always returns a response.
func (c *WebConnection) process(ctx context.Context) *http.Response {
	req, err := http.ReadRequest(c.conn)
	if err != nil {
		logger.Debug("Bad request from %s: %v", c.conn.RemoteAddr(), err)

		var perr *http.ProtocolError
		if errors.As(err, &perr) && perr.Status == http.StatusHTTPVersionNotSupported {
			return http.NewNotSupportedResponse()
		}
		return http.NewBadRequestResponse()
	}

	if !req.IsGet() || !req.IsSupportedVersion() {
		logger.Debug("Unsupported request from %s: %s %s", c.conn.RemoteAddr(), req.Method, req.Version)
		return http.NewNotSupportedResponse()
	}

	c.authenticate(req)

	target := content.CleanPath(req.Path)
	if !c.authorized(target) {
		return c.unauthorized(ctx)
	}

	return c.resolve(ctx, req, target)
}

// authenticate binds the principal when the request carries a valid digest.
// Failures leave the connection anonymous.
func (c *WebConnection) authenticate(req *http.Request) {
	if c.principal != "" {
		return
	}

	header := req.Get(http.HeaderAuthorization)
	if header == "" {
		return
	}

	params, err := auth.ParseDigest(header)
	if err != nil {
		logger.Debug("Ignoring Authorization header from %s: %v", c.conn.RemoteAddr(), err)
		return
	}

	// Unknown users hash with an empty secret
	password, _ := c.server.deps.Credentials.Password(params.Username)

	if !auth.Verify(params, password, req.Method, req.URI) {
		logger.Debug("Digest mismatch for user %q from %s", params.Username, c.conn.RemoteAddr())
		return
	}

	c.principal = params.Username
	logger.Debug("Authenticated %q from %s", c.principal, c.conn.RemoteAddr())
}

func (c *WebConnection) authorized(target string) bool {
	return credentials.Allowed(c.server.deps.Credentials, target, c.principal)
}

// resolve maps the target onto the content store.
func (c *WebConnection) resolve(ctx context.Context, req *http.Request, target string) *http.Response {
	store := c.server.deps.Content

	if credentials.IsReserved(target, c.server.config.ReservedNames) {
		logger.Debug("Refusing reserved path %s to %s", target, c.conn.RemoteAddr())
		body, size := c.reservedDocument(ctx, c.server.config.ForbiddenDocument)
		return http.NewForbiddenResponse(body, size)
	}

	info, err := store.Stat(ctx, target)
	if err != nil {
		return c.notFound(target, err)
	}

	if info.IsDir {
		target = path.Join(target, c.server.config.DefaultDocument)
		if !c.authorized(target) {
			return c.unauthorized(ctx)
		}

		info, err = store.Stat(ctx, target)
		if err != nil {
			return c.notFound(target, err)
		}
		if info.IsDir {
			return c.notFound(target, content.ErrIsDirectory)
		}
	}

	if ims := req.Get(http.HeaderIfModifiedSince); ims != "" {
		since, err := http.ParseHTTPDate(ims)
		if err != nil {
			logger.Debug("Ignoring If-Modified-Since %q: %v", ims, err)
		} else if !info.ModTime.Truncate(time.Second).After(since) {
			return http.NewNotModifiedResponse(info.ModTime)
		}
	}

	body, err := store.Open(ctx, target)
	if err != nil {
		return c.notFound(target, err)
	}

	return http.NewOKResponse(body, info.Size, info.ContentType, info.ModTime)
}

func (c *WebConnection) notFound(target string, err error) *http.Response {
	if errors.Is(err, content.ErrContentNotFound) || errors.Is(err, content.ErrIsDirectory) {
		logger.Debug("Not found: %s", target)
	} else {
		logger.Warn("Content store failed for %s: %v", target, err)
	}
	return http.NewNotFoundResponse()
}

func (c *WebConnection) unauthorized(ctx context.Context) *http.Response {
	challenge := auth.Challenge(c.server.config.Realm, auth.NewNonce())
	body, size := c.reservedDocument(ctx, c.server.config.UnauthorizedDocument)
	return http.NewUnauthorizedResponse(challenge, body, size)
}

// reservedDocument opens a 401/403 body under the served root. A missing
// document yields an empty body.
func (c *WebConnection) reservedDocument(ctx context.Context, name string) (io.ReadCloser, int64) {
	p := content.CleanPath(name)
	store := c.server.deps.Content

	info, err := store.Stat(ctx, p)
	if err != nil || info.IsDir {
		return nil, 0
	}

	body, err := store.Open(ctx, p)
	if err != nil {
		logger.Debug("Cannot open %s: %v", p, err)
		return nil, 0
	}
	return body, info.Size
}
