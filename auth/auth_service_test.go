package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/authserver"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/testutil"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "http://localhost:3001/callback"

// testFixture holds all test dependencies
type testFixture struct {
	fake    *testutil.FakeAuthServer
	store   *sessions.InMemoryStore
	service *auth.Service
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, opts ...auth.ServiceOption) *testFixture {
	t.Helper()

	fake := testutil.NewFakeAuthServer(t)
	client, err := authserver.NewClient(authserver.Config{
		ClientID:     fake.ClientID,
		ClientSecret: fake.ClientSecret,
		RedirectURI:  testRedirectURI,
		Scopes:       []string{"openid", "profile"},
		Endpoints:    authserver.DefaultEndpoints(fake.URL),
	}, authserver.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)

	store := sessions.NewInMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	service, err := auth.NewService(store, client, opts...)
	require.NoError(t, err)

	return &testFixture{fake: fake, store: store, service: service}
}

func (f *testFixture) newSession(t *testing.T) string {
	t.Helper()
	s, err := f.store.Create(context.Background())
	require.NoError(t, err)
	return s.ID
}

// loggedInSession returns a session holding a freshly issued token pair.
func (f *testFixture) loggedInSession(t *testing.T) (string, oauthmodel.TokenPair) {
	t.Helper()
	id := f.newSession(t)
	pair := f.fake.IssueTokens()
	require.NoError(t, f.store.SetTokens(context.Background(), id, pair))
	return id, pair
}

func (f *testFixture) session(t *testing.T, id string) *sessions.Session {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func requireFlowReason(t *testing.T, err error, reason string) {
	t.Helper()
	var flowErr *auth.FlowError
	require.ErrorAs(t, err, &flowErr)
	require.Equal(t, reason, flowErr.Reason)
}

func TestNewService_Validation(t *testing.T) {
	_, err := auth.NewService(nil, nil)
	require.Error(t, err)
	store := sessions.NewInMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	_, err = auth.NewService(store, nil)
	require.Error(t, err)
}

func TestBeginAuthorization(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	id := f.newSession(t)

	redirect, err := f.service.BeginAuthorization(ctx, id)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", u.Path)
	q := u.Query()
	require.Equal(t, f.fake.ClientID, q.Get("client_id"))
	require.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "openid profile", q.Get("scope"))

	state := q.Get("state")
	require.GreaterOrEqual(t, len(state), 43, "at least 256 bits base64url encoded")
	require.Equal(t, state, f.session(t, id).OAuthState)

	// a second login replaces the pending state
	redirect2, err := f.service.BeginAuthorization(ctx, id)
	require.NoError(t, err)
	u2, err := url.Parse(redirect2)
	require.NoError(t, err)
	require.NotEqual(t, state, u2.Query().Get("state"))
	require.Equal(t, u2.Query().Get("state"), f.session(t, id).OAuthState)

	_, err = f.service.BeginAuthorization(ctx, "missing")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

// beginAndApprove runs /login for the session and returns the state and a valid code.
func (f *testFixture) beginAndApprove(t *testing.T, id string) (state, code string) {
	t.Helper()
	redirect, err := f.service.BeginAuthorization(context.Background(), id)
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("state"), f.fake.IssueCode(testRedirectURI)
}

func TestCompleteAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("success stores the pair and clears state", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, code := f.beginAndApprove(t, id)

		require.NoError(t, f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: state}))

		s := f.session(t, id)
		require.Empty(t, s.OAuthState)
		require.NotEmpty(t, s.AccessToken)
		require.NotEmpty(t, s.RefreshToken)
		require.EqualValues(t, 1, f.fake.ExchangeCalls())
	})

	t.Run("state mismatch", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		_, code := f.beginAndApprove(t, id)

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: "forged"})
		requireFlowReason(t, err, oauthmodel.ReasonInvalidState)
		require.ErrorIs(t, err, auth.ErrStateMismatch)

		s := f.session(t, id)
		require.Empty(t, s.OAuthState, "state is single use even on mismatch")
		require.False(t, s.Authenticated())
		require.Zero(t, f.fake.ExchangeCalls())
	})

	t.Run("no stored state", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: "c", State: ""})
		requireFlowReason(t, err, oauthmodel.ReasonInvalidState)
		require.Zero(t, f.fake.ExchangeCalls())
	})

	t.Run("unknown session", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.service.CompleteAuthorization(ctx, "missing", auth.CallbackParams{Code: "c", State: "s"})
		requireFlowReason(t, err, oauthmodel.ReasonInvalidState)
	})

	t.Run("replayed callback", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, code := f.beginAndApprove(t, id)
		require.NoError(t, f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: state}))

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: state})
		requireFlowReason(t, err, oauthmodel.ReasonInvalidState)
		require.EqualValues(t, 1, f.fake.ExchangeCalls())
	})

	t.Run("authorization server error", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, _ := f.beginAndApprove(t, id)

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Error: "access_denied", State: state})
		requireFlowReason(t, err, "access_denied")
		require.ErrorIs(t, err, auth.ErrAuthorizationDenied)
		require.Empty(t, f.session(t, id).OAuthState)
		require.Zero(t, f.fake.ExchangeCalls())
	})

	t.Run("exchange rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, code := f.beginAndApprove(t, id)
		f.fake.FailExchange(http.StatusBadRequest)

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: state})
		requireFlowReason(t, err, oauthmodel.ReasonTokenExchangeFailed)
		require.ErrorIs(t, err, auth.ErrTokenExchange)
		require.False(t, f.session(t, id).Authenticated())
	})

	t.Run("exchange unreachable", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, code := f.beginAndApprove(t, id)
		f.fake.Close()

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{Code: code, State: state})
		requireFlowReason(t, err, oauthmodel.ReasonTokenExchangeFailed)
		require.False(t, f.session(t, id).Authenticated())
	})

	t.Run("missing code", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		state, _ := f.beginAndApprove(t, id)

		err := f.service.CompleteAuthorization(ctx, id, auth.CallbackParams{State: state})
		requireFlowReason(t, err, oauthmodel.ReasonTokenExchangeFailed)
		require.Zero(t, f.fake.ExchangeCalls())
	})
}

func TestResolveIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.ResolveIdentity(ctx, "missing")
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
		require.Zero(t, f.fake.UserInfoCalls())
	})

	t.Run("no token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.ResolveIdentity(ctx, f.newSession(t))
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
		require.Zero(t, f.fake.UserInfoCalls())
	})

	t.Run("valid token", func(t *testing.T) {
		f := setupTestFixture(t)
		id, pair := f.loggedInSession(t)

		identity, err := f.service.ResolveIdentity(ctx, id)
		require.NoError(t, err)
		require.Equal(t, &oauthmodel.Identity{Subject: testutil.FakeSubject, ClientID: testutil.FakeClientID, Scope: testutil.FakeScope}, identity)
		require.EqualValues(t, 1, f.fake.UserInfoCalls())
		require.Zero(t, f.fake.RefreshCalls())
		require.Equal(t, pair, f.session(t, id).Tokens())
	})

	t.Run("expired token is refreshed once", func(t *testing.T) {
		f := setupTestFixture(t)
		id, initial := f.loggedInSession(t)
		f.fake.ExpireAccessTokens()

		identity, err := f.service.ResolveIdentity(ctx, id)
		require.NoError(t, err)
		require.Equal(t, testutil.FakeSubject, identity.Subject)
		require.EqualValues(t, 1, f.fake.RefreshCalls())
		require.EqualValues(t, 2, f.fake.UserInfoCalls())

		rotated := f.session(t, id).Tokens()
		require.NotEqual(t, initial.AccessToken, rotated.AccessToken)
		require.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)
		require.True(t, f.fake.RefreshTokenValid(rotated.RefreshToken))
	})

	t.Run("expired without refresh token destroys the session", func(t *testing.T) {
		f := setupTestFixture(t)
		id := f.newSession(t)
		pair := f.fake.IssueTokens()
		require.NoError(t, f.store.SetTokens(ctx, id, oauthmodel.TokenPair{AccessToken: pair.AccessToken}))
		f.fake.ExpireAccessTokens()

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrSessionExpired)
		require.Zero(t, f.fake.RefreshCalls())
		_, err = f.store.Get(ctx, id)
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("refresh rejected destroys the session", func(t *testing.T) {
		f := setupTestFixture(t)
		id, _ := f.loggedInSession(t)
		f.fake.ExpireAccessTokens()
		f.fake.RevokeRefreshTokens()

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrSessionExpired)
		require.EqualValues(t, 1, f.fake.RefreshCalls())
		require.EqualValues(t, 1, f.fake.UserInfoCalls())
		_, err = f.store.Get(ctx, id)
		require.ErrorIs(t, err, errors.ErrSessionNotFound)

		// and the next lookup is simply unauthenticated
		_, err = f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("refresh server error destroys the session", func(t *testing.T) {
		f := setupTestFixture(t)
		id, _ := f.loggedInSession(t)
		f.fake.ExpireAccessTokens()
		f.fake.FailRefresh(http.StatusInternalServerError)

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrSessionExpired)
		_, err = f.store.Get(ctx, id)
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("userinfo server error keeps the session", func(t *testing.T) {
		f := setupTestFixture(t)
		id, pair := f.loggedInSession(t)
		f.fake.QueueUserInfoStatus(http.StatusInternalServerError)

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrFetchFailed)
		require.Zero(t, f.fake.RefreshCalls())
		require.Equal(t, pair, f.session(t, id).Tokens())
	})

	t.Run("final probe failure", func(t *testing.T) {
		f := setupTestFixture(t)
		id, _ := f.loggedInSession(t)
		f.fake.QueueUserInfoStatus(http.StatusUnauthorized, http.StatusUnauthorized)

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrFetchFailed)
		require.EqualValues(t, 1, f.fake.RefreshCalls())
		require.EqualValues(t, 2, f.fake.UserInfoCalls(), "no third probe")
		require.True(t, f.session(t, id).Authenticated(), "rotated pair kept")
	})

	t.Run("unreachable keeps the session", func(t *testing.T) {
		f := setupTestFixture(t)
		id, pair := f.loggedInSession(t)
		f.fake.Close()

		_, err := f.service.ResolveIdentity(ctx, id)
		require.ErrorIs(t, err, auth.ErrFetchFailed)
		require.Equal(t, pair, f.session(t, id).Tokens())
	})
}

func TestResolveIdentity_ConcurrentRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, auth.WithRefreshSerialization(true))
	id, _ := f.loggedInSession(t)
	f.fake.ExpireAccessTokens()
	f.fake.SetRefreshDelay(100 * time.Millisecond)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := f.service.ResolveIdentity(ctx, id)
			if assert.NoError(t, err) {
				assert.Equal(t, testutil.FakeSubject, identity.Subject)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, f.fake.RefreshCalls())
	require.True(t, f.fake.RefreshTokenValid(f.session(t, id).RefreshToken))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	id, _ := f.loggedInSession(t)

	require.NoError(t, f.service.Logout(ctx, id))
	require.NoError(t, f.service.Logout(ctx, id))

	_, err := f.service.ResolveIdentity(ctx, id)
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	require.Zero(t, f.fake.UserInfoCalls())
}
