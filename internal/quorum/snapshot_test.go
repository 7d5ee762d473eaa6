package quorum

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

func TestSubmitStakeSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)
		f.clock.Advance(7)
		root := keyring.HashOf("stake-root")

		snap, err := f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v2"), testEpoch, root, 1_000_000)
		require.NoError(t, err)
		assert.Equal(t, ir.StakeSnapshot{
			EpochID:       testEpoch,
			TotalStake:    1_000_000,
			UserStakeRoot: root,
			Submitter:     f.keys.Identity("v2"),
			CreatedAtTick: testEpoch*testEpochLen + 7,
		}, snap)

		got, err := f.svc.StakeSnapshot(ctx, testEpoch)
		require.NoError(t, err)
		assert.Equal(t, snap, got)

		_, err = f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch, keyring.HashOf("other"), 5)
		requireCode(t, err, ir.ErrCodeAlreadyExists)

		got, err = f.svc.StakeSnapshot(ctx, testEpoch)
		require.NoError(t, err)
		assert.Equal(t, snap, got, "the first snapshot is never overwritten")
	})
}

func TestSubmitStakeSnapshot_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	root := keyring.HashOf("stake-root")

	t.Run("not a member", func(t *testing.T) {
		_, err := f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("mallory"), testEpoch, root, 1)
		requireCode(t, err, ir.ErrCodeNotVerifier)
	})

	t.Run("no verifier set", func(t *testing.T) {
		_, err := f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch+1, root, 1)
		requireCode(t, err, ir.ErrCodeNotFound)
	})

	t.Run("membership before freshness", func(t *testing.T) {
		_, err := f.svc.InitVerifierSet(ctx, f.keys.Identity("admin"), testEpoch+1, 0, f.ids("v1"))
		require.NoError(t, err)

		_, err = f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v2"), testEpoch+1, root, 1)
		requireCode(t, err, ir.ErrCodeNotVerifier)

		_, err = f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch+1, root, 1)
		requireCode(t, err, ir.ErrCodeWrongEpoch)
	})

	t.Run("bad caller", func(t *testing.T) {
		_, err := f.svc.SubmitStakeSnapshot(ctx, "v1", testEpoch, root, 1)
		requireCode(t, err, ir.ErrCodeInvalidArgument)
	})

	_, err := f.svc.StakeSnapshot(ctx, testEpoch)
	requireCode(t, err, ir.ErrCodeNotFound)
}

func TestSubmitStakeSnapshot_EpochBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	root := keyring.HashOf("stake-root")

	// Last tick of epoch 5 still accepts; the first tick of epoch 6 does not.
	f.clock.Set(testEpoch*testEpochLen + testEpochLen - 1)
	_, err := f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch, root, 1)
	require.NoError(t, err)

	_, err = f.svc.InitVerifierSet(ctx, f.keys.Identity("admin"), testEpoch+1, 0, f.ids("v1"))
	require.NoError(t, err)
	_, err = f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch+1, root, 1)
	requireCode(t, err, ir.ErrCodeWrongEpoch)

	f.clock.Advance(1)
	_, err = f.svc.SubmitStakeSnapshot(ctx, f.keys.Identity("v1"), testEpoch+1, root, 2)
	require.NoError(t, err)
}

func TestSubmitStakeSnapshot_NoConfig(t *testing.T) {
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)
	backend := store.NewMemory()
	svc := New(backend, epoch.NewManualClock(0), registry.New(backend, nil, tokens))

	_, err = svc.SubmitStakeSnapshot(context.Background(), keyring.IdentityFor("v1"), 0, ir.Hash{}, 1)
	requireCode(t, err, ir.ErrCodeNotFound)
}

func TestSubmitStakeSnapshot_RaceHasOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		f := newFixture(t, b)
		members := f.ids("v1", "v2", "v3")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []ir.Identity
			losers  int
		)
		for _, m := range members {
			wg.Add(1)
			go func(m ir.Identity) {
				defer wg.Done()
				_, err := f.svc.SubmitStakeSnapshot(context.Background(), m, testEpoch, keyring.HashOf(string(m)), 10)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners = append(winners, m)
					return
				}
				assert.True(t, ir.IsCode(err, ir.ErrCodeAlreadyExists), "got %v", err)
				losers++
			}(m)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, 2, losers)

		snap, err := f.svc.StakeSnapshot(context.Background(), testEpoch)
		require.NoError(t, err)
		assert.Equal(t, winners[0], snap.Submitter)
	})
}
