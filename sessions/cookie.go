package sessions

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/internal/errors"
)

// CookieCodec turns a session id into the signed value carried by the session cookie.
// The value holds nothing but the id and an expiry.
type CookieCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewCookieCodec(key []byte, ttl time.Duration) (*CookieCodec, error) {
	if len(key) < keySize {
		return nil, fmt.Errorf("cookie key must be at least %d bytes", keySize)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CookieCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// TTL is the cookie max age.
func (c *CookieCodec) TTL() time.Duration {
	return c.ttl
}

func (c *CookieCodec) Encode(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the session id.
func (c *CookieCodec) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidSession, "session cookie rejected (%v)", err)
	}
	if claims.ID == "" {
		return "", errors.ErrInvalidSession
	}
	return claims.ID, nil
}
