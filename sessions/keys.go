package sessions

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	cookieKeyInfo  = "session-cookie-hs256"
	sealingKeyInfo = "session-tokens-a256gcm"
)

// Keys holds the per-purpose keys derived from the configured session secret.
type Keys struct {
	Cookie  []byte
	Sealing []byte
}

// DeriveKeys expands secret into independent cookie signing and token sealing keys.
func DeriveKeys(secret string) (Keys, error) {
	if secret == "" {
		return Keys{}, fmt.Errorf("session secret is required")
	}
	cookie, err := deriveKey(secret, cookieKeyInfo)
	if err != nil {
		return Keys{}, err
	}
	sealing, err := deriveKey(secret, sealingKeyInfo)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Cookie: cookie, Sealing: sealing}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}
