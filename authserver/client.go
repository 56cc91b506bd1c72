package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Config describes this application as a confidential client of the authorization server.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Endpoints    Endpoints
}

// Client performs every outbound call to the authorization server. Each call is bounded
// by the HTTP client timeout and the caller's context.
type Client struct {
	conf        *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	tokenClient *http.Client // httpClient with raw Basic client credentials
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which only sets a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Endpoints.AuthURL == "" || cfg.Endpoints.TokenURL == "" || cfg.Endpoints.UserInfoURL == "" {
		return nil, fmt.Errorf("authorization server endpoints are required")
	}

	c := &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Endpoints.AuthURL,
				TokenURL: cfg.Endpoints.TokenURL,
				// Explicit, so a failed grant is never retried with credentials in the body.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		userInfoURL: cfg.Endpoints.UserInfoURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokenClient = withClientCredentials(c.httpClient, cfg.ClientID, cfg.ClientSecret)
	return c, nil
}

// AuthCodeURL builds the authorize redirect: client_id, redirect_uri, response_type=code, scope and state.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// Exchange redeems an authorization code at the token endpoint.
func (c *Client) Exchange(ctx context.Context, code string) (oauthmodel.TokenPair, error) {
	token, err := c.conf.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return oauthmodel.TokenPair{}, classifyTokenError("token exchange", err)
	}
	return tokenPair(token)
}

// Refresh redeems a refresh token. When the response carries no new refresh token the
// presented one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (oauthmodel.TokenPair, error) {
	token, err := c.conf.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return oauthmodel.TokenPair{}, classifyTokenError("token refresh", err)
	}
	return tokenPair(token)
}

// UserInfo asks the authorization server who the access token belongs to.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*oauthmodel.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("userinfo", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError("userinfo", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrTokenExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Endpoint: "userinfo", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var identity oauthmodel.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("%w: userinfo: %w", ErrMalformedResponse, err)
	}
	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, oauthmodel.ErrMissingSubject)
	}
	return &identity, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.tokenClient)
}

// clientCredentialsTransport sends Authorization: Basic base64(id:secret) with the
// credentials as configured. x/oauth2 form-encodes them first, which changes any secret
// holding reserved characters.
type clientCredentialsTransport struct {
	base         http.RoundTripper
	clientID     string
	clientSecret string
}

func (t *clientCredentialsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.clientID, t.clientSecret)
	return t.base.RoundTrip(r)
}

func withClientCredentials(hc *http.Client, clientID, clientSecret string) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &clientCredentialsTransport{base: base, clientID: clientID, clientSecret: clientSecret}
	return &wrapped
}

func tokenPair(token *oauth2.Token) (oauthmodel.TokenPair, error) {
	pair := oauthmodel.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if err := pair.Validate(); err != nil {
		return oauthmodel.TokenPair{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return pair, nil
}

func classifyTokenError(endpoint string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &StatusError{Endpoint: endpoint, StatusCode: status, Body: string(retrieveErr.Body)}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transportError(endpoint, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, endpoint, err)
}
