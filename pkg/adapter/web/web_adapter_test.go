package web

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/sws/internal/protocol/http"
	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/auth"
	"github.com/marmos91/sws/pkg/content/memory"
	"github.com/marmos91/sws/pkg/credentials"
	"github.com/marmos91/sws/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	adapter *WebAdapter
	creds   *credentials.MemoryStore
	done    chan error
}

func newTestContent(t *testing.T) *memory.MemoryContentStore {
	t.Helper()

	store, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)

	docs := map[string]string{
		"/index.html":         "<h1>home</h1>",
		"/docs/index.html":    "<h1>docs</h1>",
		"/docs/readme.txt":    "read me",
		"/nodefault/a.txt":    "a",
		"/private/index.html": "secret",
		"/401.html":           "<p>login</p>",
		"/403.html":           "<p>forbidden</p>",
		"/passwd":             "alice wonderland",
	}
	for p, data := range docs {
		require.NoError(t, store.Put(p, []byte(data), docTime))
	}
	return store
}

// startServer serves a fresh adapter on an ephemeral port.
func startServer(t *testing.T, ctrl *admission.Controller) *testServer {
	t.Helper()

	creds := credentials.NewMemoryStore()
	creds.Passwords["alice"] = "wonderland"
	creds.Permissions["/private/index.html"] = []string{"alice"}

	a, err := New(WebConfig{Workers: 2, QueueSize: 4}, Dependencies{
		Content:     newTestContent(t),
		Credentials: creds,
		Admission:   ctrl,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Listen())

	ts := &testServer{adapter: a, creds: creds, done: make(chan error, 1)}
	go func() {
		ts.done <- a.Serve(context.Background())
	}()

	t.Cleanup(func() {
		a.Stop()
		select {
		case err := <-ts.done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Stop")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Wait(ctx))
	})
	return ts
}

// roundTrip sends raw bytes and parses the single response.
func (ts *testServer) roundTrip(t *testing.T, raw string) (*nethttp.Response, string) {
	t.Helper()

	conn, err := net.Dial("tcp", ts.adapter.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)

	resp, err := nethttp.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func get(target string, headers ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\nHost: localhost\r\n", target)
	for _, h := range headers {
		b.WriteString(h + "\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

func TestServeDocuments(t *testing.T) {
	ts := startServer(t, nil)

	tests := []struct {
		name       string
		request    string
		wantStatus int
		wantBody   string
	}{
		{"exact bytes", get("/docs/readme.txt"), http.StatusOK, "read me"},
		{"root directory", get("/"), http.StatusOK, "<h1>home</h1>"},
		{"directory default document", get("/docs"), http.StatusOK, "<h1>docs</h1>"},
		{"directory trailing slash", get("/docs/"), http.StatusOK, "<h1>docs</h1>"},
		{"query is ignored", get("/docs/readme.txt?x=1"), http.StatusOK, "read me"},
		{"escaped path", get("/docs/%72eadme.txt"), http.StatusOK, "read me"},
		{"missing document", get("/nope.html"), http.StatusNotFound, ""},
		{"directory without default", get("/nodefault/"), http.StatusNotFound, ""},
		{"reserved name", get("/passwd"), http.StatusForbidden, "<p>forbidden</p>"},
		{"reserved name suffix", get("/docs/permissions.txt"), http.StatusForbidden, "<p>forbidden</p>"},
		{"lowercase method", "get /docs/readme.txt http/1.1\r\n\r\n", http.StatusOK, "read me"},
		{"unsupported method", "POST / HTTP/1.1\r\n\r\n", http.StatusHTTPVersionNotSupported, ""},
		{"HTTP/1.0", "GET / HTTP/1.0\r\n\r\n", http.StatusHTTPVersionNotSupported, ""},
		{"HTTP/2.0", "GET / HTTP/2.0\r\n\r\n", http.StatusHTTPVersionNotSupported, ""},
		{"malformed request line", "garbage\r\n\r\n", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.roundTrip(t, tt.request)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.True(t, resp.Close, "connection must be closed after one exchange")
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body)
				assert.Equal(t, strconv.Itoa(len(tt.wantBody)), resp.Header.Get("Content-Length"))
			}
		})
	}
}

func TestOKHeaders(t *testing.T) {
	ts := startServer(t, nil)

	resp, _ := ts.roundTrip(t, get("/docs/index.html"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, http.FormatHTTPDate(docTime), resp.Header.Get("Last-Modified"))
	assert.NotEmpty(t, resp.Header.Get("Date"))
}

func TestIfModifiedSince(t *testing.T) {
	ts := startServer(t, nil)

	tests := []struct {
		name       string
		since      string
		wantStatus int
	}{
		{"equal", http.FormatHTTPDate(docTime), http.StatusNotModified},
		{"later", http.FormatHTTPDate(docTime.Add(time.Hour)), http.StatusNotModified},
		{"earlier", http.FormatHTTPDate(docTime.Add(-time.Second)), http.StatusOK},
		{"legacy zone equal", "Fri Mar 01 2024 08:00:00 EDT", http.StatusNotModified},
		{"legacy zone earlier", "Fri Mar 01 2024 06:59:59 EST", http.StatusOK},
		{"unparseable", "yesterday", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.roundTrip(t, get("/docs/readme.txt", "If-Modified-Since: "+tt.since))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusNotModified {
				assert.Empty(t, body)
			} else {
				assert.Equal(t, "read me", body)
			}
		})
	}
}

func digestHeader(user, password, uri string) string {
	p := &auth.Params{
		Username: user,
		Realm:    "sws",
		Nonce:    "abc123",
		URI:      uri,
		NC:       "00000001",
		CNonce:   "0a4f113b",
		Qop:      auth.QopAuth,
	}
	p.Response = auth.ExpectedResponse(p, password, "GET", uri)
	return fmt.Sprintf(`Authorization: Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=%s, nc=%s, cnonce="%s", response="%s"`,
		p.Username, p.Realm, p.Nonce, p.URI, p.Qop, p.NC, p.CNonce, p.Response)
}

func TestDigestAuthorization(t *testing.T) {
	ts := startServer(t, nil)

	t.Run("anonymous is challenged", func(t *testing.T) {
		resp, body := ts.roundTrip(t, get("/private/index.html"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "<p>login</p>", body)

		challenge := resp.Header.Get("Www-Authenticate")
		assert.True(t, strings.HasPrefix(challenge, `Digest realm="sws"`), challenge)
		assert.Contains(t, challenge, `qop="auth"`)
		assert.Contains(t, challenge, `nonce="`)
	})

	t.Run("directory resolving to guarded document is challenged", func(t *testing.T) {
		resp, _ := ts.roundTrip(t, get("/private/"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid digest", func(t *testing.T) {
		resp, body := ts.roundTrip(t, get("/private/index.html", digestHeader("alice", "wonderland", "/private/index.html")))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "secret", body)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, _ := ts.roundTrip(t, get("/private/index.html", digestHeader("alice", "guess", "/private/index.html")))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp, _ := ts.roundTrip(t, get("/private/index.html", digestHeader("mallory", "", "/private/index.html")))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("reserved path refused even when authenticated", func(t *testing.T) {
		resp, _ := ts.roundTrip(t, get("/passwd", digestHeader("alice", "wonderland", "/passwd")))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDeniedConnectionIsClosed(t *testing.T) {
	ctrl, err := admission.New(context.Background(), admission.Config{
		Blacklist: []string{"127.0.0.1", "::1"},
	}, nil)
	require.NoError(t, err)
	ts := startServer(t, ctrl)

	conn, err := net.Dial("tcp", ts.adapter.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _ = io.WriteString(conn, get("/"))

	data, err := io.ReadAll(conn)
	assert.Empty(t, data)
	if err != nil {
		// A reset is also an acceptable way to observe the close
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
	}

	served, _ := ts.adapter.Counter().Snapshot()
	assert.Zero(t, served)
}

func TestCounterOncePerConnection(t *testing.T) {
	ts := startServer(t, nil)

	requests := []string{
		get("/docs/readme.txt"),
		get("/missing"),
		"BROKEN\r\n\r\n",
		get("/private/index.html"),
	}

	var wg sync.WaitGroup
	for _, raw := range requests {
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			ts.roundTrip(t, raw)
		}(raw)
	}
	wg.Wait()

	// The handler records after closing, so allow it to catch up
	require.Eventually(t, func() bool {
		served, _ := ts.adapter.Counter().Snapshot()
		return served == uint64(len(requests))
	}, 5*time.Second, 10*time.Millisecond)

	// A client that hangs up without sending anything is still counted
	conn, err := net.Dial("tcp", ts.adapter.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		served, _ := ts.adapter.Counter().Snapshot()
		return served == uint64(len(requests)+1)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopLifecycle(t *testing.T) {
	store, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)

	a, err := New(WebConfig{}, Dependencies{Content: store}, metrics.NewNoopWebMetrics())
	require.NoError(t, err)
	assert.True(t, a.IsStopped(), "unbound adapter reports stopped")
	assert.Equal(t, "HTTP", a.Protocol())

	done := make(chan error, 1)
	go func() {
		done <- a.Serve(context.Background())
	}()

	require.Eventually(t, func() bool { return !a.IsStopped() }, 5*time.Second, 5*time.Millisecond)
	assert.NotZero(t, a.Port())

	a.Stop()
	a.Stop()
	assert.True(t, a.IsStopped())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not exit after Stop")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, a.Wait(ctx))

	assert.ErrorIs(t, a.Listen(), ErrStopped)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	store, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)

	a, err := New(WebConfig{}, Dependencies{Content: store}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Serve(ctx)
	}()

	require.Eventually(t, func() bool { return !a.IsStopped() }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
	assert.True(t, a.IsStopped())
}

func TestNewValidation(t *testing.T) {
	store, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)

	_, err = New(WebConfig{}, Dependencies{}, nil)
	assert.Error(t, err, "content store is required")

	_, err = New(WebConfig{Port: 70000}, Dependencies{Content: store}, nil)
	assert.Error(t, err)

	_, err = New(WebConfig{Workers: -1}, Dependencies{Content: store}, nil)
	assert.Error(t, err)

	_, err = New(WebConfig{ReadTimeout: -time.Second}, Dependencies{Content: store}, nil)
	assert.Error(t, err)
}
