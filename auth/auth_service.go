package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jrsteele09/go-auth-client/authserver"
	"github.com/jrsteele09/go-auth-client/instrumentation"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/sessions"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// stateLength is the number of random bytes behind each authorization state (256 bits).
	stateLength = 32

	sessionIDLogLength = 8
)

// CallbackParams are the query parameters the authorization server redirects back with.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Service drives the authorization code flow and the token lifecycle for browser sessions.
type Service struct {
	store        sessions.Store
	authServer   AuthServer
	metrics      *instrumentation.Metrics
	refreshGroup *singleflight.Group // nil when refresh serialization is off
	random       io.Reader
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithMetrics(m *instrumentation.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRefreshSerialization collapses concurrent refreshes of the same session into one
// refresh grant, and reuses a pair another request already rotated. On by default.
func WithRefreshSerialization(enabled bool) ServiceOption {
	return func(s *Service) {
		if enabled {
			s.refreshGroup = &singleflight.Group{}
		} else {
			s.refreshGroup = nil
		}
	}
}

// WithRandom sets the source for authorization states (primarily for testing)
func WithRandom(r io.Reader) ServiceOption {
	return func(s *Service) {
		s.random = r
	}
}

func NewService(store sessions.Store, authServer AuthServer, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New("[NewService] session store is required")
	}
	if authServer == nil {
		return nil, pkgerrors.New("[NewService] authorization server client is required")
	}

	s := &Service{
		store:        store,
		authServer:   authServer,
		refreshGroup: &singleflight.Group{},
		random:       rand.Reader,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// BeginAuthorization stores a fresh state in the session, replacing any earlier one,
// and returns the authorize URL to redirect the browser to.
func (s *Service) BeginAuthorization(ctx context.Context, sessionID string) (string, error) {
	state, err := s.generateState()
	if err != nil {
		return "", err
	}
	if err := s.store.SetState(ctx, sessionID, state); err != nil {
		return "", errors.Wrapf(err, "failed to store authorization state")
	}

	s.metrics.RecordAuthorizationStarted(ctx)
	return s.authServer.AuthCodeURL(state), nil
}

// CompleteAuthorization checks the callback against the stored state and exchanges the
// code. The stored state is consumed whatever the outcome. Every failure is a *FlowError.
func (s *Service) CompleteAuthorization(ctx context.Context, sessionID string, params CallbackParams) error {
	err := s.completeAuthorization(ctx, sessionID, params)

	reason := ""
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		reason = flowErr.Reason
	}
	s.metrics.RecordCallbackProcessed(ctx, reason)
	return err
}

func (s *Service) completeAuthorization(ctx context.Context, sessionID string, params CallbackParams) error {
	expected, err := s.store.ConsumeState(ctx, sessionID)
	if err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
		log.Err(err).Str("session", shortID(sessionID)).Msg("Failed to read authorization state")
		return serverFailure(err)
	}

	if params.Error != "" {
		log.Info().Str("session", shortID(sessionID)).Str("error", params.Error).Msg("Authorization server returned an error")
		return authorizationError(params.Error)
	}

	if !statesMatch(expected, params.State) {
		log.Warn().Str("session", shortID(sessionID)).Bool("had_state", expected != "").Msg("Authorization state mismatch")
		return stateMismatch()
	}

	if params.Code == "" {
		return tokenExchangeFailure(fmt.Errorf("callback carried no code"))
	}

	pair, err := s.authServer.Exchange(ctx, params.Code)
	s.metrics.RecordCodeExchange(ctx, err == nil)
	if err != nil {
		logUpstreamFailure(err, sessionID, "Token exchange failed")
		return tokenExchangeFailure(err)
	}

	if err := s.store.SetTokens(ctx, sessionID, pair); err != nil {
		log.Err(err).Str("session", shortID(sessionID)).Msg("Failed to store tokens")
		return serverFailure(err)
	}

	log.Info().Str("session", shortID(sessionID)).Msg("Authorization completed")
	return nil
}

// Logout destroys the session. Destroying a missing session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.Destroy(ctx, sessionID); err != nil {
		return errors.Wrapf(err, "failed to destroy session")
	}
	s.metrics.RecordSessionDestroyed(ctx, "logout")
	return nil
}

func (s *Service) generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("failed to generate authorization state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func statesMatch(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// logUpstreamFailure logs the authorization server's response body, which never leaves the process.
func logUpstreamFailure(err error, sessionID, msg string) {
	event := log.Warn().Err(err).Str("session", shortID(sessionID))
	var statusErr *authserver.StatusError
	if errors.As(err, &statusErr) {
		event = event.Int("status", statusErr.StatusCode).Str("body", statusErr.Body)
	}
	event.Msg(msg)
}

func shortID(id string) string {
	if len(id) <= sessionIDLogLength {
		return id
	}
	return id[:sessionIDLogLength]
}
