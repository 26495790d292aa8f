package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strconv"
	"time"
)

// ServerName is sent in the Server header of every response.
var ServerName = "sws"

// Response is a status line, headers and an optional body.
type Response struct {
	Status int
	Header textproto.MIMEHeader

	// Body is streamed after the headers and closed by Write. Nil means no body.
	Body io.ReadCloser

	// ContentLength is the body size. Negative means no Content-Length header.
	ContentLength int64
}

func newResponse(status int) *Response {
	h := make(textproto.MIMEHeader)
	h.Set(HeaderConnection, ConnectionClose)
	h.Set(HeaderDate, FormatHTTPDate(time.Now()))
	h.Set(HeaderServer, ServerName)
	return &Response{Status: status, Header: h, ContentLength: -1}
}

// NewOKResponse returns a 200 response streaming body.
func NewOKResponse(body io.ReadCloser, size int64, contentType string, modTime time.Time) *Response {
	r := newResponse(StatusOK)
	r.Body = body
	r.ContentLength = size
	if contentType != "" {
		r.Header.Set(HeaderContentType, contentType)
	}
	if !modTime.IsZero() {
		r.Header.Set(HeaderLastModified, FormatHTTPDate(modTime))
	}
	return r
}

// NewNotModifiedResponse returns a 304 response. It never carries a body.
func NewNotModifiedResponse(modTime time.Time) *Response {
	r := newResponse(StatusNotModified)
	if !modTime.IsZero() {
		r.Header.Set(HeaderLastModified, FormatHTTPDate(modTime))
	}
	return r
}

// NewUnauthorizedResponse returns a 401 response with a digest challenge.
// body may be nil.
func NewUnauthorizedResponse(challenge string, body io.ReadCloser, size int64) *Response {
	r := newDocumentResponse(StatusUnauthorized, body, size)
	r.Header.Set(HeaderWWWAuthenticate, challenge)
	return r
}

// NewForbiddenResponse returns a 403 response. body may be nil.
func NewForbiddenResponse(body io.ReadCloser, size int64) *Response {
	return newDocumentResponse(StatusForbidden, body, size)
}

// NewBadRequestResponse returns a 400 response.
func NewBadRequestResponse() *Response {
	return NewErrorResponse(StatusBadRequest)
}

// NewNotFoundResponse returns a 404 response.
func NewNotFoundResponse() *Response {
	return NewErrorResponse(StatusNotFound)
}

// NewNotSupportedResponse returns a 505 response.
func NewNotSupportedResponse() *Response {
	return NewErrorResponse(StatusHTTPVersionNotSupported)
}

// NewErrorResponse returns a response whose body is a one-line plain text
// rendering of the status.
func NewErrorResponse(status int) *Response {
	msg := []byte(fmt.Sprintf("%d %s\n", status, StatusText(status)))
	r := newResponse(status)
	r.Body = io.NopCloser(bytes.NewReader(msg))
	r.ContentLength = int64(len(msg))
	r.Header.Set(HeaderContentType, "text/plain; charset=utf-8")
	return r
}

func newDocumentResponse(status int, body io.ReadCloser, size int64) *Response {
	r := newResponse(status)
	if body == nil {
		r.ContentLength = 0
		return r
	}
	r.Body = body
	r.ContentLength = size
	r.Header.Set(HeaderContentType, "text/html; charset=utf-8")
	return r
}

// Close releases the body without writing it.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	err := r.Body.Close()
	r.Body = nil
	return err
}

// Write serializes the response to w and flushes it. The body is closed
// whether or not writing succeeds.
func (r *Response) Write(w io.Writer) error {
	defer r.Close()

	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s %d %s\r\n", Version, r.Status, StatusText(r.Status)); err != nil {
		return err
	}

	if r.ContentLength >= 0 {
		r.Header.Set(HeaderContentLength, strconv.FormatInt(r.ContentLength, 10))
	}

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range r.Header[k] {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}

	if r.Body != nil && r.Status != StatusNotModified {
		var src io.Reader = r.Body
		if r.ContentLength >= 0 {
			src = io.LimitReader(r.Body, r.ContentLength)
		}
		if _, err := io.Copy(bw, src); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}

	return bw.Flush()
}
