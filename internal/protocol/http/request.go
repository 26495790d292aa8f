package http

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
	"net/url"
	"strings"
)

// Request is a parsed request head. The server never reads request bodies.
type Request struct {
	// Method as sent by the client (not normalized).
	Method string

	// URI is the raw request-target, used verbatim for digest hashing.
	URI string

	// Path is the percent-decoded request-target without its query.
	Path string

	// Version as sent by the client, e.g. "HTTP/1.1".
	Version string

	// Header holds the request headers keyed by canonical MIME name.
	Header textproto.MIMEHeader
}

// Get returns the first value of the named header (case-insensitive).
func (r *Request) Get(name string) string {
	return r.Header.Get(name)
}

// IsGet reports whether the method is GET, ignoring case.
func (r *Request) IsGet() bool {
	return strings.EqualFold(r.Method, MethodGet)
}

// IsSupportedVersion reports whether the version is HTTP/1.1, ignoring case.
func (r *Request) IsSupportedVersion() bool {
	return strings.EqualFold(r.Version, Version)
}

// ReadRequest reads one request head (request line plus headers) from r.
//
// Malformed input yields a *ProtocolError with status 400. A well-formed
// version token naming a major version other than 1 yields status 505.
// At most MaxHeaderBytes are consumed from r.
func ReadRequest(r io.Reader) (*Request, error) {
	tp := textproto.NewReader(bufio.NewReader(io.LimitReader(r, MaxHeaderBytes)))

	line, err := tp.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, badRequest("connection closed before request line")
		}
		return nil, &ProtocolError{Status: StatusBadRequest, Err: err}
	}

	method, target, version, ok := parseRequestLine(line)
	if !ok {
		return nil, badRequest("malformed request line %q", line)
	}

	major, ok := parseVersion(version)
	if !ok {
		return nil, badRequest("malformed protocol version %q", version)
	}
	if major != 1 {
		return nil, &ProtocolError{
			Status: StatusHTTPVersionNotSupported,
			Err:    errors.New("unsupported protocol version " + version),
		}
	}

	if !strings.HasPrefix(target, "/") {
		return nil, badRequest("request target %q is not an absolute path", target)
	}

	rawPath := target
	if i := strings.IndexByte(rawPath, '?'); i >= 0 {
		rawPath = rawPath[:i]
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, &ProtocolError{Status: StatusBadRequest, Err: err}
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, &ProtocolError{Status: StatusBadRequest, Err: err}
	}

	return &Request{
		Method:  method,
		URI:     target,
		Path:    path,
		Version: version,
		Header:  header,
	}, nil
}

func parseRequestLine(line string) (method, target, version string, ok bool) {
	method, rest, ok1 := strings.Cut(line, " ")
	target, version, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || method == "" || target == "" || version == "" {
		return "", "", "", false
	}
	if strings.ContainsAny(version, " \t") {
		return "", "", "", false
	}
	return method, target, version, true
}

// parseVersion accepts "HTTP/<digit>.<digit>" (prefix case-insensitive) and
// returns the major version.
func parseVersion(v string) (int, bool) {
	const prefix = "HTTP/"
	if len(v) != len(prefix)+3 || !strings.EqualFold(v[:len(prefix)], prefix) {
		return 0, false
	}
	digits := v[len(prefix):]
	if !isDigit(digits[0]) || digits[1] != '.' || !isDigit(digits[2]) {
		return 0, false
	}
	return int(digits[0] - '0'), true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
