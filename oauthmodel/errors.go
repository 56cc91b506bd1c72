package oauthmodel

import "errors"

var (
	ErrMissingAccessToken  = errors.New("token response missing access_token")
	ErrMissingRefreshToken = errors.New("token response missing refresh_token")
	ErrMissingSubject      = errors.New("userinfo response missing sub")
)

// Reason codes placed in the ?error= query parameter when redirecting back to the frontend.
const (
	ReasonInvalidState        = "invalid_state"
	ReasonTokenExchangeFailed = "token_exchange_failed"
)

// ReasonServerError covers local failures (session store) during the callback.
const ReasonServerError = "server_error"
