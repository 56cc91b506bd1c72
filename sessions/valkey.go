package sessions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/rs/zerolog/log"
	valkeygo "github.com/valkey-io/valkey-go"
)

const (
	DefaultKeyPrefix = "authclient:session:"

	connectionVerifyTimeout = 5 * time.Second

	fieldState        = "state"
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldCreatedAt    = "created_at"
	fieldExpiresAt    = "expires_at"
)

// luaCreate writes a new session hash together with its expiry, so a hash never exists
// without a TTL.
//
// KEYS[1] = session key
// ARGV[1] = ttl in seconds
// ARGV[2..] = field, value, field, value...
const luaCreate = `
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return 1
`

// luaUpdateExisting writes field/value pairs and slides the expiry, but only when the
// session hash still exists. Returns 0 when the session is gone.
//
// KEYS[1] = session key
// ARGV[1] = ttl in seconds
// ARGV[2..] = field, value, field, value...
const luaUpdateExisting = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return 1
`

// luaConsumeState reads and removes the pending state in one step.
// Returns nil when the session is gone and "" when no state was pending.
//
// KEYS[1] = session key
// ARGV[1] = ttl in seconds
// ARGV[2] = new expires_at
const luaConsumeState = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return false
end
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
    state = ''
end
redis.call('HDEL', KEYS[1], 'state')
redis.call('HSET', KEYS[1], 'expires_at', ARGV[2])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return state
`

// ValkeyConfig holds configuration for the Valkey session store.
type ValkeyConfig struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authclient:session:")
	KeyPrefix string

	// TTL is the session lifetime, extended on every write (default 24h)
	TTL time.Duration

	// Sealer encrypts tokens at rest when set
	Sealer Sealer
}

// ValkeyStore keeps each session as a hash so token pairs are written with a single HSET.
type ValkeyStore struct {
	client valkeygo.Client
	prefix string
	ttl    time.Duration
	sealer Sealer
	now    func() time.Time
}

var _ Store = (*ValkeyStore)(nil)

// NewValkeyStore connects and verifies the connection with a PING.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	log.Info().Str("address", cfg.Address).Int("db", cfg.DB).Str("prefix", prefix).
		Bool("sealed", cfg.Sealer != nil).Msg("Connected to Valkey session store")

	return &ValkeyStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		sealer: cfg.Sealer,
		now:    time.Now,
	}, nil
}

func (s *ValkeyStore) Close() {
	s.client.Close()
	log.Info().Msg("Valkey session store connection closed")
}

func (s *ValkeyStore) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	session := Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaCreate).
			Numkeys(1).
			Key(s.key(session.ID)).
			Arg(
				strconv.FormatInt(s.ttlSeconds(), 10),
				fieldCreatedAt, formatTime(session.CreatedAt),
				fieldExpiresAt, formatTime(session.ExpiresAt),
			).
			Build(),
	).Error()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

func (s *ValkeyStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.client.Do(ctx, s.client.B().Hgetall().Key(s.key(id)).Build()).AsStrMap()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.ErrSessionNotFound
	}

	session := &Session{
		ID:         id,
		OAuthState: fields[fieldState],
		CreatedAt:  parseTime(fields[fieldCreatedAt]),
		ExpiresAt:  parseTime(fields[fieldExpiresAt]),
	}
	if session.AccessToken, err = s.open(fields[fieldAccessToken]); err != nil {
		return nil, err
	}
	if session.RefreshToken, err = s.open(fields[fieldRefreshToken]); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ValkeyStore) SetState(ctx context.Context, id, state string) error {
	return s.updateExisting(ctx, id, fieldState, state)
}

func (s *ValkeyStore) ConsumeState(ctx context.Context, id string) (string, error) {
	state, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaConsumeState).
			Numkeys(1).
			Key(s.key(id)).
			Arg(strconv.FormatInt(s.ttlSeconds(), 10), formatTime(s.now().Add(s.ttl))).
			Build(),
	).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return "", errors.ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to consume state: %w", err)
	}
	return state, nil
}

func (s *ValkeyStore) SetTokens(ctx context.Context, id string, pair oauthmodel.TokenPair) error {
	access, err := s.seal(pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(pair.RefreshToken)
	if err != nil {
		return err
	}
	return s.updateExisting(ctx, id, fieldAccessToken, access, fieldRefreshToken, refresh)
}

func (s *ValkeyStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func (s *ValkeyStore) updateExisting(ctx context.Context, id string, fieldValues ...string) error {
	args := make([]string, 0, len(fieldValues)+3)
	args = append(args, strconv.FormatInt(s.ttlSeconds(), 10))
	args = append(args, fieldValues...)
	args = append(args, fieldExpiresAt, formatTime(s.now().Add(s.ttl)))

	updated, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaUpdateExisting).
			Numkeys(1).
			Key(s.key(id)).
			Arg(args...).
			Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if updated == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

func (s *ValkeyStore) seal(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Seal(value)
}

func (s *ValkeyStore) open(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Open(value)
}

func (s *ValkeyStore) key(id string) string {
	return s.prefix + id
}

func (s *ValkeyStore) ttlSeconds() int64 {
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
