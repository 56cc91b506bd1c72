package config

import (
	"strings"
	"time"
)

const (
	serverURLVar       = "OAUTH_SERVER_URL"
	issuerDiscoveryVar = "OAUTH_ISSUER_DISCOVERY"
	clientIDVar        = "OAUTH_CLIENT_ID"
	clientSecretVar    = "OAUTH_CLIENT_SECRET"
	redirectURIVar     = "OAUTH_REDIRECT_URI"
	scopesVar          = "OAUTH_SCOPES"
	frontendURLVar     = "FRONTEND_URL"
	httpTimeoutVar     = "OAUTH_HTTP_TIMEOUT"
)

// DefaultScopes is requested when OAUTH_SCOPES is unset.
var DefaultScopes = []string{"openid", "profile"}

type OAuth struct {
	serverURL       string
	issuerDiscovery bool
	clientID        string
	clientSecret    string
	redirectURI     string
	scopes          []string
	frontendURL     string
	httpTimeout     time.Duration
}

var _ OAuthConfig = OAuth{}

func newOAuth() OAuth {
	scopes := DefaultScopes
	if raw := GetEnv(scopesVar, ""); raw != "" {
		scopes = strings.Fields(strings.ReplaceAll(raw, ",", " "))
	}
	return OAuth{
		serverURL:       strings.TrimRight(GetEnv(serverURLVar, ""), "/"),
		issuerDiscovery: GetBoolEnv(issuerDiscoveryVar, false),
		clientID:        GetEnv(clientIDVar, ""),
		clientSecret:    GetEnv(clientSecretVar, ""),
		redirectURI:     GetEnv(redirectURIVar, ""),
		scopes:          scopes,
		frontendURL:     GetEnv(frontendURLVar, ""),
		httpTimeout:     GetDurationEnv(httpTimeoutVar, 10*time.Second),
	}
}

// GetServerURL is the authorization server base URL, without a trailing slash.
func (o OAuth) GetServerURL() string {
	return o.serverURL
}

// GetIssuerDiscovery reports whether endpoints come from the issuer's discovery document
// instead of the fixed /oauth/* paths.
func (o OAuth) GetIssuerDiscovery() bool {
	return o.issuerDiscovery
}

func (o OAuth) GetClientID() string {
	return o.clientID
}

func (o OAuth) GetClientSecret() string {
	return o.clientSecret
}

func (o OAuth) GetRedirectURI() string {
	return o.redirectURI
}

func (o OAuth) GetScopes() []string {
	return append([]string(nil), o.scopes...)
}

func (o OAuth) GetFrontendURL() string {
	return o.frontendURL
}

// GetHTTPTimeout bounds every outbound call to the authorization server.
func (o OAuth) GetHTTPTimeout() time.Duration {
	return o.httpTimeout
}
