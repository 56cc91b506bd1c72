package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often NewInMemoryStore drops expired sessions.
const DefaultSweepInterval = 5 * time.Minute

// InMemoryStore is a process-local Store. Expired sessions are dropped on access and by a
// background sweep, so abandoned sessions do not accumulate. Call Stop to end the sweep.
type InMemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]Session
	ttl           time.Duration
	now           func() time.Time
	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

var _ Store = (*InMemoryStore)(nil)

type InMemoryOption func(*InMemoryStore)

// WithClock replaces time.Now, used by tests to step past the TTL.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// WithSweepInterval sets how often expired sessions are swept.
func WithSweepInterval(d time.Duration) InMemoryOption {
	return func(s *InMemoryStore) {
		s.sweepInterval = d
	}
}

// NewInMemoryStore starts the background sweep goroutine; call Stop to end it.
func NewInMemoryStore(ttl time.Duration, opts ...InMemoryOption) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		sessions:      make(map[string]Session),
		ttl:           ttl,
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = DefaultSweepInterval
	}
	go s.sweepLoop()
	return s
}

func (s *InMemoryStore) Create(_ context.Context) (*Session, error) {
	now := s.now()
	session := Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return &session, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	if !s.now().Before(session.ExpiresAt) {
		s.mu.Lock()
		s.evictIfExpired(id)
		s.mu.Unlock()
		return nil, errors.ErrSessionNotFound
	}
	return &session, nil
}

func (s *InMemoryStore) SetState(_ context.Context, id, state string) error {
	return s.update(id, func(session *Session) {
		session.OAuthState = state
	})
}

func (s *InMemoryStore) ConsumeState(_ context.Context, id string) (string, error) {
	var state string
	err := s.update(id, func(session *Session) {
		state = session.OAuthState
		session.OAuthState = ""
	})
	return state, err
}

func (s *InMemoryStore) SetTokens(_ context.Context, id string, pair oauthmodel.TokenPair) error {
	return s.update(id, func(session *Session) {
		session.AccessToken = pair.AccessToken
		session.RefreshToken = pair.RefreshToken
	})
}

func (s *InMemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", len(s.sessions)).Msg("Swept expired sessions")
	}
	return removed
}

// Stop ends the background sweep. Safe to call more than once.
func (s *InMemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

func (s *InMemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// Len is the number of stored sessions, including expired ones not yet evicted.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryStore) update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evictIfExpired(id) {
		return errors.ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok {
		return errors.ErrSessionNotFound
	}
	fn(&session)
	session.ExpiresAt = s.now().Add(s.ttl)
	s.sessions[id] = session
	return nil
}

// evictIfExpired must be called with mu held for writing.
func (s *InMemoryStore) evictIfExpired(id string) bool {
	session, ok := s.sessions[id]
	if !ok || s.now().Before(session.ExpiresAt) {
		return false
	}
	delete(s.sessions, id)
	return true
}
