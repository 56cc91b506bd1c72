package authserver

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired means the userinfo endpoint rejected the access token with 401.
	ErrTokenExpired = errors.New("access token rejected by authorization server")
	// ErrTransport covers connection failures and timeouts; no status was received.
	ErrTransport = errors.New("authorization server unreachable")
	// ErrMalformedResponse means a 2xx response could not be used.
	ErrMalformedResponse = errors.New("malformed authorization server response")
)

// StatusError is a non-2xx answer from the authorization server. Body is kept for logging
// only and must never be returned to a browser.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

func transportError(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
}
