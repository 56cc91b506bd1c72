package sessions

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
)

// Sealer encrypts token values before they leave the process.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// JWESealer produces compact JWEs with direct key agreement and AES-256-GCM.
type JWESealer struct {
	key []byte
}

var _ Sealer = (*JWESealer)(nil)

func NewJWESealer(key []byte) (*JWESealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes, got %d", keySize, len(key))
	}
	return &JWESealer{key: key}, nil
}

func (s *JWESealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := jwe.Encrypt([]byte(plaintext), jwe.WithKey(jwa.DIRECT, s.key), jwe.WithContentEncryption(jwa.A256GCM))
	if err != nil {
		return "", fmt.Errorf("failed to seal value: %w", err)
	}
	return string(sealed), nil
}

func (s *JWESealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plaintext, err := jwe.Decrypt([]byte(sealed), jwe.WithKey(jwa.DIRECT, s.key))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plaintext), nil
}
