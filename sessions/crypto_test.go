package sessions_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeys(t *testing.T) {
	_, err := sessions.DeriveKeys("")
	require.Error(t, err)

	a, err := sessions.DeriveKeys("secret-a")
	require.NoError(t, err)
	require.Len(t, a.Cookie, 32)
	require.Len(t, a.Sealing, 32)
	require.NotEqual(t, a.Cookie, a.Sealing)

	again, err := sessions.DeriveKeys("secret-a")
	require.NoError(t, err)
	require.Equal(t, a, again)

	b, err := sessions.DeriveKeys("secret-b")
	require.NoError(t, err)
	require.NotEqual(t, a.Cookie, b.Cookie)
}

func TestJWESealer(t *testing.T) {
	keys, err := sessions.DeriveKeys("sealer-secret")
	require.NoError(t, err)
	sealer, err := sessions.NewJWESealer(keys.Sealing)
	require.NoError(t, err)

	sealed, err := sealer.Seal("access-token-value")
	require.NoError(t, err)
	require.NotContains(t, sealed, "access-token-value")
	require.Equal(t, 4, strings.Count(sealed, "."), "compact JWE has five parts")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "access-token-value", opened)

	empty, err := sealer.Seal("")
	require.NoError(t, err)
	require.Empty(t, empty)

	otherKeys, err := sessions.DeriveKeys("other-secret")
	require.NoError(t, err)
	other, err := sessions.NewJWESealer(otherKeys.Sealing)
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)

	_, err = sessions.NewJWESealer([]byte("short"))
	require.Error(t, err)
}
