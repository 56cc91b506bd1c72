package auth

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

var (
	// ErrNotAuthenticated means the session holds no access token. No outbound call was made.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired means the refresh grant was refused and the session has been destroyed.
	ErrSessionExpired = errors.New("session expired")
	// ErrFetchFailed means identity could not be fetched; the session is kept.
	ErrFetchFailed = errors.New("failed to fetch user info")

	ErrAuthorizationDenied = errors.New("authorization server returned an error")
	ErrStateMismatch       = errors.New("authorization state mismatch")
	ErrTokenExchange       = errors.New("token exchange failed")
)

// FlowError ends an authorization callback. Reason is safe to put in the frontend redirect.
type FlowError struct {
	Reason string
	Err    error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func authorizationError(code string) *FlowError {
	return &FlowError{Reason: code, Err: ErrAuthorizationDenied}
}

func stateMismatch() *FlowError {
	return &FlowError{Reason: oauthmodel.ReasonInvalidState, Err: ErrStateMismatch}
}

func tokenExchangeFailure(cause error) *FlowError {
	return &FlowError{Reason: oauthmodel.ReasonTokenExchangeFailed, Err: fmt.Errorf("%w: %w", ErrTokenExchange, cause)}
}

func serverFailure(cause error) *FlowError {
	return &FlowError{Reason: oauthmodel.ReasonServerError, Err: cause}
}
