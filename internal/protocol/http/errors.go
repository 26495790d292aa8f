package http

import "fmt"

// ProtocolError reports a request that could not be parsed or that uses an
// unsupported protocol version. Status is the response code the server
// answers with (400 or 505).
type ProtocolError struct {
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error %d", e.Status)
	}
	return fmt.Sprintf("protocol error %d: %v", e.Status, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) error {
	return &ProtocolError{Status: StatusBadRequest, Err: fmt.Errorf(format, args...)}
}
