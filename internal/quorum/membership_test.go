package quorum

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

func roster(f *fixture, n int) []ir.Identity {
	aliases := make([]string, n)
	for i := range aliases {
		aliases[i] = fmt.Sprintf("member-%02d", i)
	}
	return f.ids(aliases...)
}

func TestInitVerifierSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)

		set, err := f.svc.VerifierSet(ctx, testEpoch)
		require.NoError(t, err)
		assert.Equal(t, uint64(testEpoch), set.EpochID)
		assert.Equal(t, f.keys.Identity("admin"), set.Admin)
		assert.Equal(t, uint64(500), set.ThresholdStakeWeight)
		assert.Equal(t, f.ids("v1", "v2", "v3"), set.Members)

		_, err = f.svc.InitVerifierSet(ctx, f.keys.Identity("admin"), testEpoch, 1, nil)
		requireCode(t, err, ir.ErrCodeAlreadyExists)
	})
}

func TestInitVerifierSet_SizeBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	admin := f.keys.Identity("admin")

	_, err := f.svc.InitVerifierSet(ctx, admin, 7, 0, roster(f, 65))
	requireCode(t, err, ir.ErrCodeTooManyVerifiers)

	_, err = f.svc.VerifierSet(ctx, 7)
	requireCode(t, err, ir.ErrCodeNotFound)

	set, err := f.svc.InitVerifierSet(ctx, admin, 7, 0, roster(f, 64))
	require.NoError(t, err)
	assert.Len(t, set.Members, 64)

	_, err = f.svc.InitVerifierSet(ctx, admin, 8, 0, nil)
	assert.NoError(t, err, "an empty roster is allowed")
}

func TestInitVerifierSet_RejectsBadMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	admin := f.keys.Identity("admin")

	_, err := f.svc.InitVerifierSet(ctx, admin, 7, 0, f.ids("v1", "v2", "v1"))
	requireCode(t, err, ir.ErrCodeInvalidArgument)

	_, err = f.svc.InitVerifierSet(ctx, admin, 7, 0, []ir.Identity{"v1"})
	requireCode(t, err, ir.ErrCodeInvalidArgument)
}

func TestUpdateVerifierSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)

		_, err := f.svc.UpdateVerifierSet(ctx, f.keys.Identity("v1"), testEpoch, 1, f.ids("v1"))
		requireCode(t, err, ir.ErrCodeUnauthorized)

		_, err = f.svc.UpdateVerifierSet(ctx, f.keys.Identity("admin"), 99, 1, f.ids("v1"))
		requireCode(t, err, ir.ErrCodeNotFound)

		_, err = f.svc.UpdateVerifierSet(ctx, f.keys.Identity("admin"), testEpoch, 1, roster(f, 65))
		requireCode(t, err, ir.ErrCodeTooManyVerifiers)

		set, err := f.svc.UpdateVerifierSet(ctx, f.keys.Identity("admin"), testEpoch, 2000, f.ids("v4"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2000), set.ThresholdStakeWeight)
		assert.Equal(t, f.ids("v4"), set.Members)
		assert.Equal(t, f.keys.Identity("admin"), set.Admin)

		got, err := f.svc.VerifierSet(ctx, testEpoch)
		require.NoError(t, err)
		assert.Equal(t, set, got)
	})
}
