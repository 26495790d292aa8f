// Package http implements the subset of the HTTP/1.1 wire format spoken by the
// web adapter: a single request line plus MIME headers on the way in, and a
// status line, headers and an optional streamed body on the way out.
//
// Only what the server needs is supported. There is no chunked encoding, no
// request bodies and no keep-alive: every response carries
// "Connection: close" and the connection is released after one exchange.
package http
