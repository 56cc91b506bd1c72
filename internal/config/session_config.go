package config

import "time"

const (
	StoreMemory = "memory"
	StoreValkey = "valkey"
)

type SessionConfig interface {
	GetSessionSecret() string
	GetSessionTTL() time.Duration
	GetSessionStore() string
	GetValkeyAddr() string
	GetValkeyPassword() string
	GetValkeyDB() int
	GetSessionEncryption() bool
}

type Session struct {
	secret         string
	ttl            time.Duration
	store          string
	valkeyAddr     string
	valkeyPassword string
	valkeyDB       int
	encryption     bool
}

var _ SessionConfig = Session{}

func newSession() Session {
	return Session{
		secret:         GetEnv("SESSION_SECRET", ""),
		ttl:            GetDurationEnv("SESSION_TTL", 24*time.Hour),
		store:          GetEnv("SESSION_STORE", StoreMemory),
		valkeyAddr:     GetEnv("VALKEY_ADDR", "localhost:6379"),
		valkeyPassword: GetEnv("VALKEY_PASSWORD", ""),
		valkeyDB:       GetIntEnv("VALKEY_DB", 0),
		encryption:     GetBoolEnv("SESSION_ENCRYPTION", true),
	}
}

// GetSessionSecret signs the session cookie and seeds the at-rest encryption key.
func (s Session) GetSessionSecret() string {
	return s.secret
}

// GetSessionTTL is both the cookie max age and the store expiry.
func (s Session) GetSessionTTL() time.Duration {
	return s.ttl
}

func (s Session) GetSessionStore() string {
	return s.store
}

func (s Session) GetValkeyAddr() string {
	return s.valkeyAddr
}

func (s Session) GetValkeyPassword() string {
	return s.valkeyPassword
}

func (s Session) GetValkeyDB() int {
	return s.valkeyDB
}

func (s Session) GetSessionEncryption() bool {
	return s.encryption
}
