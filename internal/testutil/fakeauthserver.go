// Package testutil provides an in-process authorization server for tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

const (
	FakeClientID     = "test-client"
	FakeClientSecret = "test-secret"
	FakeSubject      = "user-1"
	FakeScope        = "openid profile"
)

type grant struct {
	subject     string
	clientID    string
	scope       string
	redirectURI string
}

// FakeAuthServer implements /oauth/authorize, /oauth/token and /oauth/userinfo.
// Codes and refresh tokens are single use and every grant rotates the refresh token.
// The authorize endpoint approves immediately as FakeSubject.
type FakeAuthServer struct {
	*httptest.Server

	ClientID     string
	ClientSecret string

	mu            sync.Mutex
	codes         map[string]grant
	refreshTokens map[string]grant
	accessTokens  map[string]grant

	exchangeStatus   int
	refreshStatus    int
	userInfoStatuses []int
	refreshDelay     time.Duration
	userInfoDelay    time.Duration

	authorizeCalls atomic.Int64
	exchangeCalls  atomic.Int64
	refreshCalls   atomic.Int64
	userInfoCalls  atomic.Int64
}

// NewFakeAuthServer starts the server and closes it when the test ends.
func NewFakeAuthServer(t *testing.T) *FakeAuthServer {
	t.Helper()
	f := &FakeAuthServer{
		ClientID:      FakeClientID,
		ClientSecret:  FakeClientSecret,
		codes:         make(map[string]grant),
		refreshTokens: make(map[string]grant),
		accessTokens:  make(map[string]grant),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/authorize", f.authorize)
	mux.HandleFunc("POST /oauth/token", f.token)
	mux.HandleFunc("GET /oauth/userinfo", f.userInfo)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// IssueCode registers an authorization code as if the user had approved the request.
func (f *FakeAuthServer) IssueCode(redirectURI string) string {
	code := randomToken()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = grant{subject: FakeSubject, clientID: f.ClientID, scope: FakeScope, redirectURI: redirectURI}
	return code
}

// IssueTokens mints a valid pair without going through the code grant.
func (f *FakeAuthServer) IssueTokens() oauthmodel.TokenPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(grant{subject: FakeSubject, clientID: f.ClientID, scope: FakeScope})
}

// ExpireAccessTokens makes every outstanding access token answer 401.
func (f *FakeAuthServer) ExpireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessTokens = make(map[string]grant)
}

// RevokeRefreshTokens makes every outstanding refresh token unusable.
func (f *FakeAuthServer) RevokeRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshTokens = make(map[string]grant)
}

// FailExchange forces the authorization_code grant to answer status. Zero restores normal behaviour.
func (f *FakeAuthServer) FailExchange(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeStatus = status
}

// FailRefresh forces the refresh_token grant to answer status. Zero restores normal behaviour.
func (f *FakeAuthServer) FailRefresh(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshStatus = status
}

// QueueUserInfoStatus forces the next userinfo calls, one status per call.
func (f *FakeAuthServer) QueueUserInfoStatus(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInfoStatuses = append(f.userInfoStatuses, statuses...)
}

func (f *FakeAuthServer) SetRefreshDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshDelay = d
}

func (f *FakeAuthServer) SetUserInfoDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInfoDelay = d
}

func (f *FakeAuthServer) AuthorizeCalls() int64 { return f.authorizeCalls.Load() }
func (f *FakeAuthServer) ExchangeCalls() int64  { return f.exchangeCalls.Load() }
func (f *FakeAuthServer) RefreshCalls() int64   { return f.refreshCalls.Load() }
func (f *FakeAuthServer) UserInfoCalls() int64  { return f.userInfoCalls.Load() }

// RefreshTokenValid reports whether rt can still be redeemed.
func (f *FakeAuthServer) RefreshTokenValid(rt string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.refreshTokens[rt]
	return ok
}

func (f *FakeAuthServer) authorize(w http.ResponseWriter, r *http.Request) {
	f.authorizeCalls.Add(1)
	q := r.URL.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != f.ClientID {
		http.Error(w, "invalid authorization request", http.StatusBadRequest)
		return
	}
	redirectURI, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirectURI.String() == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	code := f.IssueCode(redirectURI.String())
	params := redirectURI.Query()
	params.Set("code", code)
	params.Set("state", q.Get("state"))
	redirectURI.RawQuery = params.Encode()
	http.Redirect(w, r, redirectURI.String(), http.StatusFound)
}

func (f *FakeAuthServer) token(w http.ResponseWriter, r *http.Request) {
	if !f.clientAuthenticated(r) {
		http.Error(w, "client authentication failed", http.StatusUnauthorized)
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		f.exchangeCalls.Add(1)
		f.handleAuthorizationCode(w, r)
	case "refresh_token":
		f.refreshCalls.Add(1)
		f.handleRefreshToken(w, r)
	default:
		http.Error(w, "unsupported grant_type", http.StatusBadRequest)
	}
}

// clientAuthenticated compares the raw HTTP Basic credentials.
func (f *FakeAuthServer) clientAuthenticated(r *http.Request) bool {
	id, secret, ok := r.BasicAuth()
	return ok && id == f.ClientID && secret == f.ClientSecret
}

func (f *FakeAuthServer) handleAuthorizationCode(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exchangeStatus != 0 {
		http.Error(w, `{"error":"server_error","error_description":"forced failure"}`, f.exchangeStatus)
		return
	}

	code := r.FormValue("code")
	g, ok := f.codes[code]
	delete(f.codes, code)
	if !ok || g.redirectURI != r.FormValue("redirect_uri") {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(f.issueLocked(g)))
}

func (f *FakeAuthServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delay := f.refreshDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refreshStatus != 0 {
		http.Error(w, `{"error":"invalid_grant","error_description":"forced failure"}`, f.refreshStatus)
		return
	}

	rt := r.FormValue("refresh_token")
	g, ok := f.refreshTokens[rt]
	delete(f.refreshTokens, rt)
	if !ok {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(f.issueLocked(g)))
}

func (f *FakeAuthServer) userInfo(w http.ResponseWriter, r *http.Request) {
	f.userInfoCalls.Add(1)

	f.mu.Lock()
	delay := f.userInfoDelay
	forced := 0
	if len(f.userInfoStatuses) > 0 {
		forced = f.userInfoStatuses[0]
		f.userInfoStatuses = f.userInfoStatuses[1:]
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if forced != 0 {
		http.Error(w, http.StatusText(forced), forced)
		return
	}

	accessToken, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	g, valid := f.accessTokens[accessToken]
	f.mu.Unlock()
	if !ok || !valid {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, oauthmodel.Identity{Subject: g.subject, ClientID: g.clientID, Scope: g.scope})
}

// issueLocked must be called with mu held.
func (f *FakeAuthServer) issueLocked(g grant) oauthmodel.TokenPair {
	pair := oauthmodel.TokenPair{AccessToken: randomToken(), RefreshToken: randomToken()}
	f.accessTokens[pair.AccessToken] = g
	f.refreshTokens[pair.RefreshToken] = g
	return pair
}

func tokenResponse(pair oauthmodel.TokenPair) map[string]any {
	return map[string]any{
		"access_token":  pair.AccessToken,
		"token_type":    "Bearer",
		"expires_in":    900,
		"refresh_token": pair.RefreshToken,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
