package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/store"
)

type fixture struct {
	reg   *Registry
	clock *epoch.ManualClock
	keys  *keyring.Keyring
	admin ir.Identity
	gate  *capability.Signer
	name  ir.Hash
}

func defaultParams(gate ir.Identity) ConfigParams {
	return ConfigParams{
		EpochLen:          100,
		MinReceipts:       10,
		MinStakeWeight:    1000,
		TTLMinSeconds:     60,
		TTLMaxSeconds:     86400,
		FinalizeAuthority: gate,
	}
}

// newFixture builds a registry with its config initialized by "admin" and
// "gate" as the finalize authority.
func newFixture(t *testing.T, backend store.Backend) *fixture {
	t.Helper()
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)

	keys := keyring.New()
	f := &fixture{
		clock: epoch.NewManualClock(1),
		keys:  keys,
		admin: keys.Identity("admin"),
		gate:  keys.Signer("gate"),
		name:  keyring.HashOf("example.dns"),
	}
	f.reg = New(backend, f.clock, tokens)

	_, err = f.reg.InitConfig(context.Background(), f.admin, defaultParams(f.gate.Identity()))
	require.NoError(t, err)
	return f
}

func (f *fixture) finalize(t *testing.T, dest string, ttl uint32) (ir.CanonicalRoute, error) {
	t.Helper()
	token, err := f.gate.Mint(capability.AudienceFinalize)
	require.NoError(t, err)
	return f.reg.FinalizeRoute(context.Background(), token, ir.FinalizeRequest{
		NameHash:     f.name,
		DestHash:     keyring.HashOf(dest),
		TTLSeconds:   ttl,
		AggregateRef: ir.Address("agg-" + dest),
	})
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b store.Backend)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := store.Open(filepath.Join(t.TempDir(), "registry.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
}
