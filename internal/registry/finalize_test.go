package registry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/store"
)

func TestFinalizeRoute_FirstWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		f := newFixture(t, b)
		f.clock.Set(42)

		route, err := f.finalize(t, "dest-a", 300)
		require.NoError(t, err)
		assert.Equal(t, f.name, route.NameHash)
		assert.Equal(t, keyring.HashOf("dest-a"), route.DestHash)
		assert.Equal(t, uint32(300), route.TTLSeconds)
		assert.Equal(t, uint64(1), route.Version)
		assert.Equal(t, uint64(42), route.UpdatedAtTick)
		assert.Equal(t, ir.Address("agg-dest-a"), route.LastAggregate)

		got, err := f.reg.Route(context.Background(), f.name)
		require.NoError(t, err)
		assert.Equal(t, route, got)
	})
}

func TestFinalizeRoute_SameValuesKeepVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		f := newFixture(t, b)

		first, err := f.finalize(t, "dest-a", 300)
		require.NoError(t, err)

		f.clock.Advance(5)
		second, err := f.finalize(t, "dest-a", 300)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), second.Version)
		assert.Equal(t, first.UpdatedAtTick+5, second.UpdatedAtTick)
	})
}

func TestFinalizeRoute_VersionCountsChanges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		f := newFixture(t, b)

		steps := []struct {
			dest    string
			ttl     uint32
			version uint64
		}{
			{"dest-a", 300, 1},
			{"dest-b", 300, 2},
			{"dest-a", 300, 3},
			{"dest-a", 600, 4},
			{"dest-a", 600, 4},
		}
		for i, s := range steps {
			route, err := f.finalize(t, s.dest, s.ttl)
			require.NoError(t, err, "step %d", i)
			assert.Equal(t, s.version, route.Version, "step %d", i)
		}
	})
}

func TestFinalizeRoute_TTLBounds(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	tests := []struct {
		ttl uint32
		ok  bool
	}{
		{30, false},
		{59, false},
		{60, true},
		{86400, true},
		{86401, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ttl), func(t *testing.T) {
			_, err := f.finalize(t, "dest", tt.ttl)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, ir.IsCode(err, ir.ErrCodeTTLOutOfRange), "got %v", err)
		})
	}
}

func TestFinalizeRoute_RejectsOutOfRangeWithoutWriting(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	_, err := f.finalize(t, "dest", 30)
	require.Error(t, err)

	_, err = f.reg.Route(context.Background(), f.name)
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound))
}

func TestFinalizeRoute_Unauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())
	req := ir.FinalizeRequest{NameHash: f.name, DestHash: keyring.HashOf("d"), TTLSeconds: 300}

	t.Run("other signer", func(t *testing.T) {
		token, err := f.keys.Signer("mallory").Mint(capability.AudienceFinalize)
		require.NoError(t, err)
		_, err = f.reg.FinalizeRoute(ctx, token, req)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		token, err := f.gate.Mint(capability.AudienceAPI)
		require.NoError(t, err)
		_, err = f.reg.FinalizeRoute(ctx, token, req)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.reg.FinalizeRoute(ctx, "not.a.token", req)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
	})

	t.Run("replayed", func(t *testing.T) {
		token, err := f.gate.Mint(capability.AudienceFinalize)
		require.NoError(t, err)
		_, err = f.reg.FinalizeRoute(ctx, token, req)
		require.NoError(t, err)
		_, err = f.reg.FinalizeRoute(ctx, token, req)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
	})

	t.Run("authority unset", func(t *testing.T) {
		_, err := f.reg.UpdateConfig(ctx, f.admin, defaultParams(""))
		require.NoError(t, err)
		_, err = f.finalize(t, "d", 300)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
	})
}

func TestFinalizeRoute_UnauthorizedBeforeTTL(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	token, err := f.keys.Signer("mallory").Mint(capability.AudienceFinalize)
	require.NoError(t, err)

	_, err = f.reg.FinalizeRoute(context.Background(), token, ir.FinalizeRequest{
		NameHash: f.name, DestHash: keyring.HashOf("d"), TTLSeconds: 1,
	})
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorizedFinalize), "got %v", err)
}

func TestFinalizeRoute_VersionOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())

	_, err := f.finalize(t, "dest-a", 300)
	require.NoError(t, err)
	_, err = f.reg.routes.Update(ctx, ir.CanonicalRouteKey(f.name), func(r *ir.CanonicalRoute) error {
		r.Version = math.MaxUint64
		return nil
	})
	require.NoError(t, err)

	_, err = f.finalize(t, "dest-b", 300)
	assert.True(t, ir.IsCode(err, ir.ErrCodeOverflow), "got %v", err)

	got, err := f.reg.Route(ctx, f.name)
	require.NoError(t, err)
	assert.Equal(t, keyring.HashOf("dest-a"), got.DestHash)
	assert.Equal(t, uint64(math.MaxUint64), got.Version)

	// Same values still refresh without bumping.
	_, err = f.finalize(t, "dest-a", 300)
	assert.NoError(t, err)
}

func TestFinalizeRoute_NoConfig(t *testing.T) {
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)
	reg := New(store.NewMemory(), nil, tokens)

	_, err = reg.FinalizeRoute(context.Background(), "x", ir.FinalizeRequest{NameHash: keyring.HashOf("n")})
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound), "got %v", err)
}

func TestFinalizeRoute_ConcurrentAlternatingValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		f := newFixture(t, b)
		const n = 20

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			versions []uint64
		)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				dest := "dest-a"
				if i%2 == 1 {
					dest = "dest-b"
				}
				route, err := f.finalize(t, dest, 300)
				assert.NoError(t, err)
				mu.Lock()
				versions = append(versions, route.Version)
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		final, err := f.reg.Route(context.Background(), f.name)
		require.NoError(t, err)

		// Every version from 1 to the final one was produced by some call,
		// and no call saw a version beyond it.
		slices.Sort(versions)
		versions = slices.Compact(versions)
		want := make([]uint64, 0, final.Version)
		for v := uint64(1); v <= final.Version; v++ {
			want = append(want, v)
		}
		assert.Equal(t, want, versions)
		assert.LessOrEqual(t, final.Version, uint64(n))
	})
}

func TestRoutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.NewMemory())

	routes, err := f.reg.Routes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)

	_, err = f.finalize(t, "dest-a", 300)
	require.NoError(t, err)
	f.name = keyring.HashOf("other.dns")
	_, err = f.finalize(t, "dest-b", 300)
	require.NoError(t, err)

	routes, err = f.reg.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, keyring.HashOf("example.dns"), routes[0].NameHash)
	assert.Equal(t, keyring.HashOf("other.dns"), routes[1].NameHash)

	_, err = f.reg.Route(ctx, keyring.HashOf("missing"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound))
}
