package api

import (
	"errors"
	"fmt"
)

// Error taxonomy for backend calls. Callers match with errors.Is / errors.As.
var (
	// ErrUnauthenticated means no user is signed in; the request was never
	// dispatched. Consumers redirect to login, never retry.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNetwork wraps a transport failure (DNS, timeout, connection reset).
	// Idempotent reads may be retried; mutations must surface to the user.
	ErrNetwork = errors.New("network failure")

	// ErrProtocol means the server answered 2xx with a body we could not
	// decode.
	ErrProtocol = errors.New("malformed server response")
)

// HTTPError is a non-2xx response from the backend. Message carries the
// server-supplied human-readable error when one was present.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request (status %d)", e.Status)
	}
	return fmt.Sprintf("server rejected request (status %d): %s", e.Status, e.Message)
}
