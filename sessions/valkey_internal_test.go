package sessions

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValkeyStore_CreateSetsExpiry(t *testing.T) {
	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	store, err := NewValkeyStore(ValkeyConfig{
		Address:   addr,
		KeyPrefix: "authclienttest:create-expiry:",
		TTL:       time.Minute,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}
	t.Cleanup(store.Close)

	ctx := context.Background()
	s, err := store.Create(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Destroy(ctx, s.ID) })

	ttl, err := store.client.Do(ctx, store.client.B().Ttl().Key(store.key(s.ID)).Build()).AsInt64()
	require.NoError(t, err)
	require.Greater(t, ttl, int64(0))
	require.LessOrEqual(t, ttl, int64(60))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}
