package quorum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

func (f *fixture) submitAndFinalize(t *testing.T, who string, p AggregateParams) (ir.CanonicalRoute, error) {
	t.Helper()
	_, err := f.svc.SubmitAggregate(context.Background(), f.keys.Identity(who), p)
	require.NoError(t, err)
	return f.svc.FinalizeIfQuorum(context.Background(), p.EpochID, p.NameHash, f.keys.Identity(who), p.DestHash, p.TTLSeconds)
}

func TestFinalizeIfQuorum(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)
		p := f.aggregate("dest-a")

		route, err := f.submitAndFinalize(t, "v1", p)
		require.NoError(t, err)
		assert.Equal(t, f.name, route.NameHash)
		assert.Equal(t, p.DestHash, route.DestHash)
		assert.Equal(t, uint32(300), route.TTLSeconds)
		assert.Equal(t, uint64(1), route.Version)
		assert.Equal(t, ir.AggregateKey(testEpoch, f.name, f.keys.Identity("v1")).MustAddress(), route.LastAggregate)

		// Re-finalizing the same aggregate keeps the version.
		again, err := f.svc.FinalizeIfQuorum(ctx, testEpoch, f.name, f.keys.Identity("v1"), p.DestHash, p.TTLSeconds)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), again.Version)

		// A different answer from another verifier bumps it.
		next, err := f.submitAndFinalize(t, "v2", f.aggregate("dest-b"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), next.Version)

		got, err := f.reg.Route(ctx, f.name)
		require.NoError(t, err)
		assert.Equal(t, next, got)
	})
}

func TestFinalizeIfQuorum_ReceiptsGate(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	p := f.aggregate("d")
	p.ReceiptCount = 9
	_, err := f.submitAndFinalize(t, "v1", p)
	requireCode(t, err, ir.ErrCodeNotEnoughReceipts)

	p.ReceiptCount = 10
	_, err = f.submitAndFinalize(t, "v2", p)
	assert.NoError(t, err)
}

func TestFinalizeIfQuorum_StakeGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())

	// required = max(min_stake_weight 1000, threshold 500) = 1000.
	p := f.aggregate("d")
	p.StakeWeight = 999
	_, err := f.submitAndFinalize(t, "v1", p)
	requireCode(t, err, ir.ErrCodeNotEnoughStakeWeight)

	p.StakeWeight = 1000
	_, err = f.submitAndFinalize(t, "v2", p)
	require.NoError(t, err)

	// Raising the set threshold above the config minimum makes it binding.
	_, err = f.svc.UpdateVerifierSet(ctx, f.keys.Identity("admin"), testEpoch, 1500, f.ids("v1", "v2", "v3"))
	require.NoError(t, err)
	p.StakeWeight = 1499
	_, err = f.submitAndFinalize(t, "v3", p)
	requireCode(t, err, ir.ErrCodeNotEnoughStakeWeight)
}

func TestFinalizeIfQuorum_Mismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	v1 := f.keys.Identity("v1")
	p := f.aggregate("dest-a")

	_, err := f.svc.SubmitAggregate(ctx, v1, p)
	require.NoError(t, err)

	_, err = f.svc.FinalizeIfQuorum(ctx, testEpoch, f.name, v1, keyring.HashOf("dest-b"), p.TTLSeconds)
	requireCode(t, err, ir.ErrCodeAggregateMismatch)

	_, err = f.svc.FinalizeIfQuorum(ctx, testEpoch, f.name, v1, p.DestHash, p.TTLSeconds+1)
	requireCode(t, err, ir.ErrCodeAggregateMismatch)

	_, err = f.reg.Route(ctx, f.name)
	requireCode(t, err, ir.ErrCodeNotFound)
}

func TestFinalizeIfQuorum_EpochBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	v1 := f.keys.Identity("v1")
	p := f.aggregate("d")

	f.clock.Set(testEpoch*testEpochLen + testEpochLen - 1)
	_, err := f.svc.SubmitAggregate(ctx, v1, p)
	require.NoError(t, err)

	// Epoch 5 closes before the gate runs.
	f.clock.Advance(1)
	_, err = f.svc.FinalizeIfQuorum(ctx, testEpoch, f.name, v1, p.DestHash, p.TTLSeconds)
	requireCode(t, err, ir.ErrCodeWrongEpoch)
}

func TestFinalizeIfQuorum_MissingRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())

	_, err := f.svc.FinalizeIfQuorum(ctx, testEpoch, f.name, f.keys.Identity("v1"), keyring.HashOf("d"), 300)
	requireCode(t, err, ir.ErrCodeNotFound)

	_, err = f.svc.FinalizeIfQuorum(ctx, testEpoch+1, f.name, f.keys.Identity("v1"), keyring.HashOf("d"), 300)
	requireCode(t, err, ir.ErrCodeNotFound)
}

func TestFinalizeIfQuorum_TTLOutOfRange(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	p := f.aggregate("d")
	p.TTLSeconds = 30
	_, err := f.submitAndFinalize(t, "v1", p)
	requireCode(t, err, ir.ErrCodeTTLOutOfRange)
}

func TestFinalizeIfQuorum_GateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("no key", func(t *testing.T) {
		f := newFixture(t, store.NewMemory())
		f.svc.gate = nil
		_, err := f.submitAndFinalize(t, "v1", f.aggregate("d"))
		requireCode(t, err, ir.ErrCodeUnauthorizedFinalize)
	})

	t.Run("key is not the linked authority", func(t *testing.T) {
		f := newFixture(t, store.NewMemory())
		f.svc.gate = f.keys.Signer("rogue")
		_, err := f.submitAndFinalize(t, "v1", f.aggregate("d"))
		requireCode(t, err, ir.ErrCodeUnauthorizedFinalize)
	})

	t.Run("registry trusts another authority", func(t *testing.T) {
		f := newFixture(t, store.NewMemory())
		cfg, err := f.reg.Config(ctx)
		require.NoError(t, err)
		params := registry.ParamsOf(cfg)
		params.FinalizeAuthority = f.keys.Identity("someone-else")
		_, err = f.reg.UpdateConfig(ctx, f.keys.Identity("admin"), params)
		require.NoError(t, err)

		_, err = f.submitAndFinalize(t, "v1", f.aggregate("d"))
		requireCode(t, err, ir.ErrCodeUnauthorizedFinalize)
	})
}

func TestInitQuorumAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())

	qa, err := f.svc.QuorumAuthority(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.keys.Identity("gate"), qa.Identity)
	assert.Equal(t, uint64(testEpoch*testEpochLen), qa.LinkedAtTick)

	_, err = f.svc.InitQuorumAuthority(ctx, f.keys.Identity("rogue"))
	requireCode(t, err, ir.ErrCodeAlreadyExists)
}
