package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

// AuthServer is the remote authorization server. authserver.Client satisfies it.
// Errors follow the authserver classification: ErrTokenExpired for a rejected access
// token, *StatusError for any other non-2xx answer and ErrTransport when nothing came back.
type AuthServer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauthmodel.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (oauthmodel.TokenPair, error)
	UserInfo(ctx context.Context, accessToken string) (*oauthmodel.Identity, error)
}
