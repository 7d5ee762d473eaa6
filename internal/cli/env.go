package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/config"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

// OfflineOptions holds the flags of commands that operate on the SQLite
// database directly instead of through a running server.
type OfflineOptions struct {
	*RootOptions
	Database string // overrides store.path
	KeyFile  string // caller's seed file
	GateKey  string // overrides keys.gate_key
	Tick     uint64 // fixes the clock instead of deriving it from clock.genesis
}

// addOfflineFlags registers the offline flags on a command group.
func addOfflineFlags(cmd *cobra.Command, o *OfflineOptions) {
	cmd.PersistentFlags().StringVar(&o.Database, "db", "", "path to SQLite database (default store.path)")
	cmd.PersistentFlags().StringVar(&o.KeyFile, "key", "", "caller key seed file")
	cmd.PersistentFlags().StringVar(&o.GateKey, "gate-key", "", "quorum gate key seed file (default keys.gate_key)")
	cmd.PersistentFlags().Uint64Var(&o.Tick, "tick", 0, "current tick (default derived from clock.genesis)")
}

// env is the set of services an offline command runs against.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	clock    epoch.Clock
	registry *registry.Registry
	quorum   *quorum.Service
	caller   *capability.Signer
}

// openEnv loads the deployment config and wires the services over the
// database named by --db or store.path.
func openEnv(cmd *cobra.Command, o *OfflineOptions) (*env, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Encoding)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	path := o.Database
	if path == "" {
		if cfg.Store.Backend == "memory" {
			return nil, NewExitError(ExitCommandError, "store.backend is memory; pass --db to use a database file")
		}
		path = cfg.Store.Path
	}

	var caller *capability.Signer
	if o.KeyFile != "" {
		if caller, err = capability.LoadSigner(o.KeyFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load key", err)
		}
	}

	var quorumOpts []quorum.Option
	gatePath := o.GateKey
	if gatePath == "" {
		gatePath = cfg.Keys.GateKey
	}
	if gatePath != "" {
		gate, err := capability.LoadSigner(gatePath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load gate key", err)
		}
		quorumOpts = append(quorumOpts, quorum.WithGate(gate.WithTTL(cfg.TokenTTL())))
	}

	tokens, err := capability.NewVerifier(cfg.Auth.ReplayWindow)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	clock, err := offlineClock(cmd, o, cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := registry.New(st, clock, tokens, registry.WithLogger(log))
	quorumOpts = append(quorumOpts, quorum.WithLogger(log))

	return &env{
		cfg:      cfg,
		log:      log,
		store:    st,
		clock:    clock,
		registry: reg,
		quorum:   quorum.New(st, clock, reg, quorumOpts...),
		caller:   caller,
	}, nil
}

// offlineClock fixes the clock at --tick when given, and otherwise counts
// ticks from the genesis anchored in the database, anchoring clock.genesis
// there if the database has none yet.
func offlineClock(cmd *cobra.Command, o *OfflineOptions, cfg *config.Config, backend store.Backend) (epoch.Clock, error) {
	if cmd.Flags().Changed("tick") {
		return epoch.NewManualClock(o.Tick), nil
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if configured := cfg.Genesis(); !configured.IsZero() {
		genesis, _, err := epoch.AnchorGenesis(ctx, backend, configured, time.Time{})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to anchor clock genesis", err)
		}
		return epoch.NewSlotClock(genesis, cfg.SlotDuration()), nil
	}
	genesis, ok, err := epoch.StoredGenesis(ctx, backend)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read clock genesis", err)
	}
	if !ok {
		return nil, NewExitError(ExitCommandError, "clock.genesis is not configured and the database has none; pass --tick")
	}
	return epoch.NewSlotClock(genesis, cfg.SlotDuration()), nil
}

// Close releases the database and flushes the logger.
func (e *env) Close() error {
	_ = e.log.Sync()
	return e.store.Close()
}

// callerID returns the identity of --key.
func (e *env) callerID() (ir.Identity, error) {
	if e.caller == nil {
		return "", NewExitError(ExitCommandError, "this command needs --key")
	}
	return e.caller.Identity(), nil
}

// withEnv runs fn against a fresh env and writes its result or rejection.
func withEnv(cmd *cobra.Command, o *OfflineOptions, fn func(ctx context.Context, e *env) (any, error)) error {
	f := newFormatter(cmd, o.RootOptions)
	e, err := openEnv(cmd, o)
	if err != nil {
		return f.Fail(err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := fn(ctx, e)
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(data)
}

// parseHashFlag decodes a required hex hash flag.
func parseHashFlag(name, v string) (ir.Hash, error) {
	if v == "" {
		return ir.Hash{}, NewExitError(ExitCommandError, fmt.Sprintf("--%s is required", name))
	}
	h, err := ir.ParseHash(v)
	if err != nil {
		return ir.Hash{}, WrapExitError(ExitCommandError, "--"+name, err)
	}
	return h, nil
}

// parseDest accepts a 0x-prefixed destination hash or a destination string,
// which it hashes.
func parseDest(v string) (ir.Hash, error) {
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		return ir.ParseHash(v)
	}
	return ir.DestHash(v)
}

// parseIdentities validates a list of hex identities.
func parseIdentities(values []string) ([]ir.Identity, error) {
	ids := make([]ir.Identity, 0, len(values))
	var errs []error
	for _, v := range values {
		id, err := ir.ParseIdentity(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", v, err))
			continue
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return nil, ir.NewInvalidArgument("members: %v", errors.Join(errs...))
	}
	return ids, nil
}
