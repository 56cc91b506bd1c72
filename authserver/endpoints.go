package authserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
	UserInfoPath  = "/oauth/userinfo"
)

// Endpoints are the three authorization server URLs the client talks to.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// DefaultEndpoints derives the fixed endpoint layout from the server base URL.
func DefaultEndpoints(serverURL string) Endpoints {
	base := strings.TrimSuffix(serverURL, "/")
	return Endpoints{
		AuthURL:     base + AuthorizePath,
		TokenURL:    base + TokenPath,
		UserInfoURL: base + UserInfoPath,
	}
}

// DiscoverEndpoints reads the issuer's OpenID configuration document.
func DiscoverEndpoints(ctx context.Context, issuer string, httpClient *http.Client) (Endpoints, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, strings.TrimSuffix(issuer, "/"))
	if err != nil {
		return Endpoints{}, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	endpoint := provider.Endpoint()
	endpoints := Endpoints{
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: provider.UserInfoEndpoint(),
	}
	if endpoints.UserInfoURL == "" {
		return Endpoints{}, fmt.Errorf("issuer %s does not advertise a userinfo endpoint", issuer)
	}
	return endpoints, nil
}
