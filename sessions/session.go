package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

// DefaultTTL matches the session cookie max age.
const DefaultTTL = 24 * time.Hour

// Session is the server-side record behind the browser's session cookie.
// Token material only ever lives here, never in the cookie.
type Session struct {
	ID           string    // Unique session identifier (UUID)
	OAuthState   string    // Pending authorization state, cleared after one comparison
	AccessToken  string    // Set at callback time, rewritten on every refresh
	RefreshToken string    // Rotated together with AccessToken
	CreatedAt    time.Time // When the session was created
	ExpiresAt    time.Time // Slides forward on every write
}

// Tokens returns the stored pair.
func (s Session) Tokens() oauthmodel.TokenPair {
	return oauthmodel.TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// Authenticated reports whether an access token has been stored.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Store keeps sessions keyed by id. Implementations must be safe for concurrent use.
// Every operation except Create and Destroy returns errors.ErrSessionNotFound when the
// session is absent or expired; writes never resurrect a destroyed session.
type Store interface {
	// Create starts a new empty session with a fresh unguessable id.
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// SetState overwrites any pending authorization state.
	SetState(ctx context.Context, id, state string) error
	// ConsumeState returns the pending state and removes it in the same step.
	// An empty string means no state was pending.
	ConsumeState(ctx context.Context, id string) (string, error)
	// SetTokens replaces both tokens at once.
	SetTokens(ctx context.Context, id string, pair oauthmodel.TokenPair) error
	// Destroy is idempotent.
	Destroy(ctx context.Context, id string) error
}
