package authserver_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authserver"
	"github.com/jrsteele09/go-auth-client/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "http://localhost:3001/callback"

type testFixture struct {
	fake   *testutil.FakeAuthServer
	client *authserver.Client
}

func setupTestFixture(t *testing.T, opts ...authserver.Option) *testFixture {
	t.Helper()
	fake := testutil.NewFakeAuthServer(t)
	client, err := authserver.NewClient(authserver.Config{
		ClientID:     fake.ClientID,
		ClientSecret: fake.ClientSecret,
		RedirectURI:  testRedirectURI,
		Scopes:       []string{"openid", "profile"},
		Endpoints:    authserver.DefaultEndpoints(fake.URL),
	}, opts...)
	require.NoError(t, err)
	return &testFixture{fake: fake, client: client}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := authserver.NewClient(authserver.Config{Endpoints: authserver.DefaultEndpoints("http://auth")})
	require.Error(t, err)
	_, err = authserver.NewClient(authserver.Config{ClientID: "c"})
	require.Error(t, err)
}

func TestDefaultEndpoints(t *testing.T) {
	e := authserver.DefaultEndpoints("http://auth.example.com/")
	require.Equal(t, "http://auth.example.com/oauth/authorize", e.AuthURL)
	require.Equal(t, "http://auth.example.com/oauth/token", e.TokenURL)
	require.Equal(t, "http://auth.example.com/oauth/userinfo", e.UserInfoURL)
}

func TestAuthCodeURL(t *testing.T) {
	f := setupTestFixture(t)

	raw := f.client.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, f.fake.URL+"/oauth/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	require.Equal(t, f.fake.ClientID, q.Get("client_id"))
	require.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "openid profile", q.Get("scope"))
	require.Equal(t, "state-123", q.Get("state"))
	require.Contains(t, raw, "scope=openid+profile")
}

func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		pair, err := f.client.Exchange(ctx, f.fake.IssueCode(testRedirectURI))
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		require.EqualValues(t, 1, f.fake.ExchangeCalls())
	})

	t.Run("code is single use", func(t *testing.T) {
		f := setupTestFixture(t)
		code := f.fake.IssueCode(testRedirectURI)
		_, err := f.client.Exchange(ctx, code)
		require.NoError(t, err)

		_, err = f.client.Exchange(ctx, code)
		var statusErr *authserver.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		require.Contains(t, statusErr.Body, "invalid_grant")
	})

	t.Run("wrong client secret", func(t *testing.T) {
		f := setupTestFixture(t)
		client, err := authserver.NewClient(authserver.Config{
			ClientID:     f.fake.ClientID,
			ClientSecret: "different",
			RedirectURI:  testRedirectURI,
			Endpoints:    authserver.DefaultEndpoints(f.fake.URL),
		})
		require.NoError(t, err)
		_, err = client.Exchange(ctx, f.fake.IssueCode(testRedirectURI))
		var statusErr *authserver.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})

	t.Run("server error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.FailExchange(http.StatusInternalServerError)
		_, err := f.client.Exchange(ctx, f.fake.IssueCode(testRedirectURI))
		var statusErr *authserver.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		require.EqualValues(t, 1, f.fake.ExchangeCalls())
	})

	t.Run("unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.Close()
		_, err := f.client.Exchange(ctx, "code")
		require.ErrorIs(t, err, authserver.ErrTransport)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates", func(t *testing.T) {
		f := setupTestFixture(t)
		initial := f.fake.IssueTokens()

		rotated, err := f.client.Refresh(ctx, initial.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, initial.AccessToken, rotated.AccessToken)
		require.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)
		require.False(t, f.fake.RefreshTokenValid(initial.RefreshToken))
		require.True(t, f.fake.RefreshTokenValid(rotated.RefreshToken))
		require.EqualValues(t, 1, f.fake.RefreshCalls())
	})

	t.Run("rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		initial := f.fake.IssueTokens()
		f.fake.RevokeRefreshTokens()

		_, err := f.client.Refresh(ctx, initial.RefreshToken)
		var statusErr *authserver.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.Close()
		_, err := f.client.Refresh(ctx, "rt")
		require.ErrorIs(t, err, authserver.ErrTransport)
	})
}

func TestTokenRequestsSendRawClientCredentials(t *testing.T) {
	const (
		clientID     = "app"
		clientSecret = "s3cr+t/=x y"
	)
	wantHeader := "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+clientSecret))

	var (
		mu      sync.Mutex
		headers []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Get("Authorization"))
		mu.Unlock()
		id, secret, ok := r.BasicAuth()
		if !ok || id != clientID || secret != clientSecret {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := authserver.NewClient(authserver.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  testRedirectURI,
		Endpoints:    authserver.DefaultEndpoints(srv.URL),
	})
	require.NoError(t, err)

	pair, err := client.Exchange(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, "at", pair.AccessToken)

	pair, err = client.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	require.Equal(t, "rt", pair.RefreshToken)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{wantHeader, wantHeader}, headers)
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		pair := f.fake.IssueTokens()
		identity, err := f.client.UserInfo(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testutil.FakeSubject, identity.Subject)
		require.Equal(t, testutil.FakeClientID, identity.ClientID)
		require.Equal(t, testutil.FakeScope, identity.Scope)
	})

	t.Run("expired", func(t *testing.T) {
		f := setupTestFixture(t)
		pair := f.fake.IssueTokens()
		f.fake.ExpireAccessTokens()
		_, err := f.client.UserInfo(ctx, pair.AccessToken)
		require.ErrorIs(t, err, authserver.ErrTokenExpired)
	})

	t.Run("server error is not expiry", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.QueueUserInfoStatus(http.StatusBadGateway)
		_, err := f.client.UserInfo(ctx, f.fake.IssueTokens().AccessToken)
		require.NotErrorIs(t, err, authserver.ErrTokenExpired)
		var statusErr *authserver.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.Close()
		_, err := f.client.UserInfo(ctx, "at")
		require.ErrorIs(t, err, authserver.ErrTransport)
	})

	t.Run("timeout", func(t *testing.T) {
		f := setupTestFixture(t, authserver.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
		f.fake.SetUserInfoDelay(300 * time.Millisecond)
		_, err := f.client.UserInfo(ctx, f.fake.IssueTokens().AccessToken)
		require.ErrorIs(t, err, authserver.ErrTransport)
	})

	t.Run("malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(srv.Close)
		client, err := authserver.NewClient(authserver.Config{ClientID: "c", Endpoints: authserver.DefaultEndpoints(srv.URL)})
		require.NoError(t, err)
		_, err = client.UserInfo(ctx, "at")
		require.ErrorIs(t, err, authserver.ErrMalformedResponse)
	})
}

func TestDiscoverEndpoints(t *testing.T) {
	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"userinfo_endpoint": %q,
			"jwks_uri": %q
		}`, issuer, issuer+"/authorize", issuer+"/token", issuer+"/userinfo", issuer+"/jwks")
	}))
	t.Cleanup(srv.Close)
	issuer = srv.URL

	endpoints, err := authserver.DiscoverEndpoints(context.Background(), issuer, srv.Client())
	require.NoError(t, err)
	require.Equal(t, authserver.Endpoints{
		AuthURL:     issuer + "/authorize",
		TokenURL:    issuer + "/token",
		UserInfoURL: issuer + "/userinfo",
	}, endpoints)

	_, err = authserver.DiscoverEndpoints(context.Background(), "http://127.0.0.1:1", nil)
	require.Error(t, err)
}
