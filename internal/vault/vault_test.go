package vault

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

var testCred = models.Credential{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret", SessionToken: "token"}

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)} }

// vaults returns one instance of every implementation sharing clk.
func vaults(t *testing.T, clk *clock) map[string]Vault {
	t.Helper()
	mem := NewMemory()
	mem.now = clk.now

	b, err := OpenBolt(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	b.now = clk.now

	return map[string]Vault{"memory": mem, "bolt": b}
}

func TestVault_StoreRetrieveRevoke(t *testing.T) {
	for name, v := range vaults(t, newClock()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key, err := v.Store(ctx, testCred, time.Minute)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(key)
			require.NoError(t, err)
			assert.Len(t, raw, 16)

			got, ok, err := v.Retrieve(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, testCred, *got)

			require.NoError(t, v.Revoke(ctx, key))
			_, ok, err = v.Retrieve(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, v.Revoke(ctx, key), "revoking twice is fine")
		})
	}
}

func TestVault_Expiry(t *testing.T) {
	clk := newClock()
	for name, v := range vaults(t, clk) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key, err := v.Store(ctx, testCred, 10*time.Second)
			require.NoError(t, err)

			clk.advance(9 * time.Second)
			_, ok, err := v.Retrieve(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			clk.advance(time.Second)
			_, ok, err = v.Retrieve(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, "expired at exactly the ttl")
		})
	}
}

func TestVault_UnknownKey(t *testing.T) {
	for name, v := range vaults(t, newClock()) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := v.Retrieve(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVault_DistinctKeys(t *testing.T) {
	v := NewMemory()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := v.Store(context.Background(), testCred, 0)
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestMemory_Sweep(t *testing.T) {
	clk := newClock()
	v := NewMemory()
	v.now = clk.now
	ctx := context.Background()

	_, err := v.Store(ctx, testCred, time.Second)
	require.NoError(t, err)
	_, err = v.Store(ctx, testCred, time.Hour)
	require.NoError(t, err)

	clk.advance(time.Minute)
	assert.Equal(t, 1, v.Sweep())
	assert.Len(t, v.entries, 1)
}

func TestBolt_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)
	key, err := b.Store(context.Background(), testCred, time.Hour)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()
	got, ok, err := b.Retrieve(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AKIAEXAMPLE", got.AccessKeyID)
}
