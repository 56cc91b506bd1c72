package auth

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-client/authserver"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

// lifecycleState is a step in resolving the identity behind a session.
//
//	NoToken -> Probing -> Valid
//	                   -> Expired -> Refreshing -> Rotated -> Probing (final) -> Valid | HardFailure
//	                                            -> RefreshFailed -> SessionDestroyed
//	Any transport error -> HardFailure
type lifecycleState int

const (
	stateNoToken lifecycleState = iota
	stateProbing
	stateExpired
	stateRefreshing
	stateRotated
	stateRefreshFailed

	// terminal
	stateValid
	stateSessionDestroyed
	stateHardFailure
	stateNotAuthenticated
)

// maxProbes bounds userinfo calls per resolution: the first probe and one retry after a refresh.
const maxProbes = 2

var stateNames = map[lifecycleState]string{
	stateNoToken:          "no_token",
	stateProbing:          "probing",
	stateExpired:          "expired",
	stateRefreshing:       "refreshing",
	stateRotated:          "rotated",
	stateRefreshFailed:    "refresh_failed",
	stateValid:            "valid",
	stateSessionDestroyed: "session_destroyed",
	stateHardFailure:      "hard_failure",
	stateNotAuthenticated: "not_authenticated",
}

func (s lifecycleState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s lifecycleState) terminal() bool {
	return s >= stateValid
}

// resolution carries one ResolveIdentity call through the state machine.
type resolution struct {
	sessionID string
	pair      oauthmodel.TokenPair
	probes    int
	identity  *oauthmodel.Identity
	err       error
}

// ResolveIdentity returns the identity behind the session's access token, refreshing the
// token pair once when the access token is rejected. Errors are ErrNotAuthenticated,
// ErrSessionExpired (the session is gone) or ErrFetchFailed (the session is kept).
func (s *Service) ResolveIdentity(ctx context.Context, sessionID string) (*oauthmodel.Identity, error) {
	r := &resolution{sessionID: sessionID}
	state := stateNoToken
	for !state.terminal() {
		next := s.step(ctx, state, r)
		log.Debug().Str("session", shortID(sessionID)).Stringer("from", state).Stringer("to", next).Msg("Identity lifecycle transition")
		state = next
	}

	s.metrics.RecordIdentityResolved(ctx, state.String())
	return r.identity, r.err
}

func (s *Service) step(ctx context.Context, state lifecycleState, r *resolution) lifecycleState {
	switch state {
	case stateNoToken:
		return s.loadTokens(ctx, r)
	case stateProbing:
		return s.probe(ctx, r)
	case stateExpired:
		if r.pair.RefreshToken == "" {
			return stateRefreshFailed
		}
		return stateRefreshing
	case stateRefreshing:
		return s.refreshTokens(ctx, r)
	case stateRotated:
		return stateProbing
	case stateRefreshFailed:
		return s.destroyExpired(ctx, r)
	default:
		return s.hardFailure(r, fmt.Errorf("unexpected lifecycle state %s", state))
	}
}

func (s *Service) loadTokens(ctx context.Context, r *resolution) lifecycleState {
	session, err := s.store.Get(ctx, r.sessionID)
	if errors.Is(err, errors.ErrSessionNotFound) {
		r.err = ErrNotAuthenticated
		return stateNotAuthenticated
	}
	if err != nil {
		return s.hardFailure(r, err)
	}
	if !session.Authenticated() {
		r.err = ErrNotAuthenticated
		return stateNotAuthenticated
	}
	r.pair = session.Tokens()
	return stateProbing
}

func (s *Service) probe(ctx context.Context, r *resolution) lifecycleState {
	r.probes++
	identity, err := s.authServer.UserInfo(ctx, r.pair.AccessToken)
	switch {
	case err == nil:
		r.identity = identity
		return stateValid
	case errors.Is(err, authserver.ErrTokenExpired) && r.probes < maxProbes:
		return stateExpired
	default:
		logUpstreamFailure(err, r.sessionID, "Userinfo request failed")
		return s.hardFailure(r, err)
	}
}

func (s *Service) refreshTokens(ctx context.Context, r *resolution) lifecycleState {
	pair, err := s.refresh(ctx, r.sessionID, r.pair)
	var statusErr *authserver.StatusError
	switch {
	case err == nil:
		r.pair = pair
		return stateRotated
	case errors.As(err, &statusErr), errors.Is(err, errors.ErrSessionNotFound):
		logUpstreamFailure(err, r.sessionID, "Token refresh rejected")
		return stateRefreshFailed
	default:
		logUpstreamFailure(err, r.sessionID, "Token refresh failed")
		return s.hardFailure(r, err)
	}
}

func (s *Service) destroyExpired(ctx context.Context, r *resolution) lifecycleState {
	if err := s.store.Destroy(ctx, r.sessionID); err != nil {
		log.Err(err).Str("session", shortID(r.sessionID)).Msg("Failed to destroy expired session")
	}
	s.metrics.RecordSessionDestroyed(ctx, "refresh_failed")
	r.err = ErrSessionExpired
	return stateSessionDestroyed
}

func (s *Service) hardFailure(r *resolution, cause error) lifecycleState {
	r.identity = nil
	r.err = fmt.Errorf("%w: %w", ErrFetchFailed, cause)
	return stateHardFailure
}

// refresh redeems the session's refresh token and stores the rotated pair. With
// serialization on, concurrent callers holding the same refresh token share one grant.
func (s *Service) refresh(ctx context.Context, sessionID string, stale oauthmodel.TokenPair) (oauthmodel.TokenPair, error) {
	if s.refreshGroup == nil {
		return s.rotate(ctx, sessionID, stale, false)
	}

	// Waiters share the leader's call, so one disconnecting browser must not cancel it.
	// The HTTP client timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.refreshGroup.Do(sessionID+"\x00"+stale.RefreshToken, func() (any, error) {
		return s.rotate(shared, sessionID, stale, true)
	})
	if err != nil {
		return oauthmodel.TokenPair{}, err
	}
	return v.(oauthmodel.TokenPair), nil
}

func (s *Service) rotate(ctx context.Context, sessionID string, stale oauthmodel.TokenPair, reread bool) (oauthmodel.TokenPair, error) {
	if reread {
		current, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return oauthmodel.TokenPair{}, err
		}
		if current.Authenticated() && current.RefreshToken != stale.RefreshToken {
			log.Debug().Str("session", shortID(sessionID)).Msg("Token pair already rotated by another request")
			return current.Tokens(), nil
		}
	}

	pair, err := s.authServer.Refresh(ctx, stale.RefreshToken)
	s.metrics.RecordTokenRefresh(ctx, err == nil)
	if err != nil {
		return oauthmodel.TokenPair{}, err
	}
	if err := s.store.SetTokens(ctx, sessionID, pair); err != nil {
		return oauthmodel.TokenPair{}, err
	}
	log.Info().Str("session", shortID(sessionID)).Msg("Token pair rotated")
	return pair, nil
}
