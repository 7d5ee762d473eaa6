package epoch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// AnchorGenesis returns the genesis recorded in backend, writing one first if
// the store has none. The first writer records configured, or now when no
// genesis is configured. Later calls always get the recorded instant back, so
// ticks keep counting from the same origin across restarts. A configured
// genesis that disagrees with the recorded one is an error.
func AnchorGenesis(ctx context.Context, backend store.Backend, configured, now time.Time) (genesis time.Time, created bool, err error) {
	def := configured
	if def.IsZero() {
		def = now
	}
	table := store.NewTable[ir.ClockGenesis](backend, ir.KindClockGenesis)
	rec, created, err := table.CreateOrGet(ctx, ir.ClockGenesisKey(), ir.ClockGenesis{
		Genesis: def.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("anchor genesis: %w", err)
	}
	genesis, err = time.Parse(time.RFC3339Nano, rec.Genesis)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("anchor genesis: recorded value %q: %w", rec.Genesis, err)
	}
	if !configured.IsZero() && !configured.Equal(genesis) {
		return time.Time{}, false, fmt.Errorf("clock.genesis %s does not match genesis %s recorded in the store",
			configured.UTC().Format(time.RFC3339Nano), rec.Genesis)
	}
	return genesis, created, nil
}

// StoredGenesis reads the recorded genesis without writing one. ok is false
// when the store has never been anchored.
func StoredGenesis(ctx context.Context, backend store.Backend) (genesis time.Time, ok bool, err error) {
	table := store.NewTable[ir.ClockGenesis](backend, ir.KindClockGenesis)
	rec, err := table.Get(ctx, ir.ClockGenesisKey())
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	genesis, err = time.Parse(time.RFC3339Nano, rec.Genesis)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("recorded genesis %q: %w", rec.Genesis, err)
	}
	return genesis, true, nil
}
