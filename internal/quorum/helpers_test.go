package quorum

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

const (
	testEpochLen = 100
	testEpoch    = 5
)

type fixture struct {
	svc   *Service
	reg   *registry.Registry
	clock *epoch.ManualClock
	keys  *keyring.Keyring
	name  ir.Hash
}

// newFixture wires a registry and quorum service over backend. The registry
// requires 10 receipts and 1000 stake weight with TTL caps [60, 86400]; the
// gate is linked; epoch 5 has members v1..v3 and threshold 500; the clock
// sits at the first tick of epoch 5.
func newFixture(t *testing.T, backend store.Backend) *fixture {
	t.Helper()
	ctx := context.Background()
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)

	keys := keyring.New()
	clock := epoch.NewManualClock(testEpoch * testEpochLen)
	reg := registry.New(backend, clock, tokens)
	f := &fixture{
		svc:   New(backend, clock, reg, WithGate(keys.Signer("gate"))),
		reg:   reg,
		clock: clock,
		keys:  keys,
		name:  keyring.HashOf("example.dns"),
	}

	_, err = reg.InitConfig(ctx, keys.Identity("admin"), registry.ConfigParams{
		EpochLen:          testEpochLen,
		MinReceipts:       10,
		MinStakeWeight:    1000,
		TTLMinSeconds:     60,
		TTLMaxSeconds:     86400,
		FinalizeAuthority: keys.Identity("gate"),
	})
	require.NoError(t, err)
	_, err = f.svc.InitQuorumAuthority(ctx, keys.Identity("gate"))
	require.NoError(t, err)
	_, err = f.svc.InitVerifierSet(ctx, keys.Identity("admin"), testEpoch, 500, f.ids("v1", "v2", "v3"))
	require.NoError(t, err)
	return f
}

func (f *fixture) ids(aliases ...string) []ir.Identity {
	out := make([]ir.Identity, len(aliases))
	for i, a := range aliases {
		out[i] = f.keys.Identity(a)
	}
	return out
}

// aggregate returns passing aggregate params for f.name in testEpoch.
func (f *fixture) aggregate(dest string) AggregateParams {
	return AggregateParams{
		EpochID:      testEpoch,
		NameHash:     f.name,
		DestHash:     keyring.HashOf(dest),
		TTLSeconds:   300,
		ReceiptCount: 10,
		StakeWeight:  1000,
		ReceiptsRoot: keyring.HashOf("receipts-" + dest),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b store.Backend)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := store.Open(filepath.Join(t.TempDir(), "quorum.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
}

func requireCode(t *testing.T, err error, code ir.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, ir.CodeOf(err), "error: %v", err)
}
