package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnsquorum/internal/config"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/registry"
)

// configFlags are the settable registry policy fields.
type configFlags struct {
	epochLen          uint64
	minReceipts       uint32
	minStakeWeight    uint64
	ttlMin            uint32
	ttlMax            uint32
	finalizeAuthority string
}

func (c *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&c.epochLen, "epoch-len", 100, "ticks per epoch")
	cmd.Flags().Uint32Var(&c.minReceipts, "min-receipts", 10, "receipts an aggregate needs")
	cmd.Flags().Uint64Var(&c.minStakeWeight, "min-stake-weight", 1000, "stake weight an aggregate needs")
	cmd.Flags().Uint32Var(&c.ttlMin, "ttl-min", 60, "smallest route TTL in seconds")
	cmd.Flags().Uint32Var(&c.ttlMax, "ttl-max", 86400, "largest route TTL in seconds")
	cmd.Flags().StringVar(&c.finalizeAuthority, "finalize-authority", "", "identity allowed to finalize routes")
}

// apply overwrites the fields of p whose flags were set, or all of them when
// all is true.
func (c *configFlags) apply(cmd *cobra.Command, p *registry.ConfigParams, all bool) {
	set := func(name string) bool { return all || cmd.Flags().Changed(name) }
	if set("epoch-len") {
		p.EpochLen = c.epochLen
	}
	if set("min-receipts") {
		p.MinReceipts = c.minReceipts
	}
	if set("min-stake-weight") {
		p.MinStakeWeight = c.minStakeWeight
	}
	if set("ttl-min") {
		p.TTLMinSeconds = c.ttlMin
	}
	if set("ttl-max") {
		p.TTLMaxSeconds = c.ttlMax
	}
	if set("finalize-authority") {
		p.FinalizeAuthority = ir.Identity(c.finalizeAuthority)
	}
}

// NewConfigCommand creates the registry config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the registry policy",
	}
	addOfflineFlags(cmd, o)

	var initFlags configFlags
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the registry config; the caller becomes its authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				caller, err := e.callerID()
				if err != nil {
					return nil, err
				}
				var p registry.ConfigParams
				initFlags.apply(cmd, &p, true)
				return e.registry.InitConfig(ctx, caller, p)
			})
		},
	}
	initFlags.register(initCmd)

	var updateFlags configFlags
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change the registry policy; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				caller, err := e.callerID()
				if err != nil {
					return nil, err
				}
				cur, err := e.registry.Config(ctx)
				if err != nil {
					return nil, err
				}
				p := registry.ParamsOf(cur)
				updateFlags.apply(cmd, &p, false)
				return e.registry.UpdateConfig(ctx, caller, p)
			})
		},
	}
	updateFlags.register(updateCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the registry config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				return e.registry.Config(ctx)
			})
		},
	}

	deploymentCmd := &cobra.Command{
		Use:   "deployment",
		Short: "Print the resolved deployment config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return f.Fail(WrapExitError(ExitCommandError, "failed to load config", err))
			}
			if f.Format == "json" {
				return f.Success(cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(string(data))
		},
	}

	cmd.AddCommand(initCmd, updateCmd, showCmd, deploymentCmd)
	return cmd
}

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	var (
		epochID   uint64
		name      string
		submitter string
		dest      string
		ttl       uint32
	)
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Finalize a verifier's aggregate into the canonical route if it meets quorum",
		Long: `Run the quorum gate for one aggregate.

The aggregate named by --epoch, --name and --submitter must attest --dest and
--ttl, carry enough receipts and stake weight, and belong to the current
epoch. The gate signs the registry call with --gate-key (or keys.gate_key).

Example:
  ddnsq finalize --db ddnsq.db --gate-key gate.key --tick 512 \
    --epoch 5 --name example.dns --submitter <hex> --dest 10.0.0.1 --ttl 300`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				nameHash, err := ir.ParseName(name)
				if err != nil {
					return nil, err
				}
				destHash, err := parseDest(dest)
				if err != nil {
					return nil, err
				}
				sub, err := ir.ParseIdentity(submitter)
				if err != nil {
					return nil, ir.NewInvalidArgument("submitter: %v", err)
				}
				return e.quorum.FinalizeIfQuorum(ctx, epochID, nameHash, sub, destHash, ttl)
			})
		},
	}
	addOfflineFlags(cmd, o)
	cmd.Flags().Uint64Var(&epochID, "epoch", 0, "epoch of the aggregate")
	cmd.Flags().StringVar(&name, "name", "", "domain name or 0x-prefixed name hash")
	cmd.Flags().StringVar(&submitter, "submitter", "", "identity of the aggregate's submitter")
	cmd.Flags().StringVar(&dest, "dest", "", "destination or 0x-prefixed destination hash")
	cmd.Flags().Uint32Var(&ttl, "ttl", 0, "TTL in seconds")
	for _, f := range []string{"epoch", "name", "submitter", "dest", "ttl"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// NewRouteCommand creates the route command group.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Read canonical routes",
	}
	addOfflineFlags(cmd, o)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print the canonical route for a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				h, err := ir.ParseName(args[0])
				if err != nil {
					return nil, err
				}
				return e.registry.Route(ctx, h)
			})
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "Print every canonical route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				return e.registry.Routes(ctx)
			})
		},
	})
	return cmd
}

// epochStatus is the output of the epoch command.
type epochStatus struct {
	Tick     uint64  `json:"tick"`
	EpochLen uint64  `json:"epoch_len,omitempty"`
	EpochID  *uint64 `json:"epoch_id,omitempty"`
}

// NewEpochCommand creates the epoch command.
func NewEpochCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "epoch",
		Short: "Print the current tick and, once the registry is configured, the current epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				status := epochStatus{Tick: e.clock.Tick()}
				cfg, err := e.registry.Config(ctx)
				if ir.IsCode(err, ir.ErrCodeNotFound) {
					return status, nil
				}
				if err != nil {
					return nil, err
				}
				id, err := epoch.Of(status.Tick, cfg.EpochLen)
				if err != nil {
					return nil, err
				}
				status.EpochLen = cfg.EpochLen
				status.EpochID = &id
				return status, nil
			})
		},
	}
	addOfflineFlags(cmd, o)
	return cmd
}
