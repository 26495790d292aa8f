package http

// Protocol constants
const (
	// Version is the only protocol version served.
	Version = "HTTP/1.1"

	// MethodGet is the only method served.
	MethodGet = "GET"

	// DefaultFile is the document served for directory targets unless
	// configured otherwise.
	DefaultFile = "index.html"

	// ConnectionClose is the value of the Connection header on every response.
	ConnectionClose = "close"

	// MaxHeaderBytes bounds the request line plus headers.
	MaxHeaderBytes = 1 << 20
)

// Status codes produced by the server.
const (
	StatusOK                      = 200
	StatusNotModified             = 304
	StatusBadRequest              = 400
	StatusUnauthorized            = 401
	StatusForbidden               = 403
	StatusNotFound                = 404
	StatusHTTPVersionNotSupported = 505
)

// Header names (canonical MIME form).
const (
	HeaderAuthorization   = "Authorization"
	HeaderConnection      = "Connection"
	HeaderContentLength   = "Content-Length"
	HeaderContentType     = "Content-Type"
	HeaderDate            = "Date"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderLastModified    = "Last-Modified"
	HeaderServer          = "Server"
	HeaderWWWAuthenticate = "Www-Authenticate"
)

var statusText = map[int]string{
	StatusOK:                      "OK",
	StatusNotModified:             "Not Modified",
	StatusBadRequest:              "Bad Request",
	StatusUnauthorized:            "Unauthorized",
	StatusForbidden:               "Forbidden",
	StatusNotFound:                "Not Found",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for a status code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}
