package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/quorum"
)

func parseEpochArg(s string) (uint64, error) {
	e, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ir.NewInvalidArgument("epoch: %v", err)
	}
	return e, nil
}

// NewVerifiersCommand creates the verifier set command group.
func NewVerifiersCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "verifiers",
		Short: "Manage per-epoch verifier rosters",
	}
	addOfflineFlags(cmd, o)

	rosterCommand := func(use, short string, update bool) *cobra.Command {
		var (
			threshold uint64
			members   []string
		)
		c := &cobra.Command{
			Use:   use + " <epoch>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
					caller, err := e.callerID()
					if err != nil {
						return nil, err
					}
					epochID, err := parseEpochArg(args[0])
					if err != nil {
						return nil, err
					}
					ids, err := parseIdentities(members)
					if err != nil {
						return nil, err
					}
					if update {
						return e.quorum.UpdateVerifierSet(ctx, caller, epochID, threshold, ids)
					}
					return e.quorum.InitVerifierSet(ctx, caller, epochID, threshold, ids)
				})
			},
		}
		c.Flags().Uint64Var(&threshold, "threshold", 0, "stake weight threshold for the epoch")
		c.Flags().StringSliceVar(&members, "member", nil, "verifier identity (repeatable)")
		return c
	}

	cmd.AddCommand(
		rosterCommand("init", "Create the roster for an epoch; the caller becomes its admin", false),
		rosterCommand("update", "Replace the roster of an epoch (admin only)", true),
		&cobra.Command{
			Use:   "show <epoch>",
			Short: "Print the roster for an epoch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
					epochID, err := parseEpochArg(args[0])
					if err != nil {
						return nil, err
					}
					return e.quorum.VerifierSet(ctx, epochID)
				})
			},
		},
	)
	return cmd
}

// NewSnapshotCommand creates the stake snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Submit and read per-epoch stake snapshots",
	}
	addOfflineFlags(cmd, o)

	var (
		root       string
		totalStake uint64
	)
	submitCmd := &cobra.Command{
		Use:   "submit <epoch>",
		Short: "Commit the stake snapshot for the current epoch (once per epoch)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				caller, err := e.callerID()
				if err != nil {
					return nil, err
				}
				epochID, err := parseEpochArg(args[0])
				if err != nil {
					return nil, err
				}
				rootHash, err := parseHashFlag("root", root)
				if err != nil {
					return nil, err
				}
				return e.quorum.SubmitStakeSnapshot(ctx, caller, epochID, rootHash, totalStake)
			})
		},
	}
	submitCmd.Flags().StringVar(&root, "root", "", "user stake merkle root (hex)")
	submitCmd.Flags().Uint64Var(&totalStake, "total-stake", 0, "total network stake")

	cmd.AddCommand(submitCmd, &cobra.Command{
		Use:   "show <epoch>",
		Short: "Print the stake snapshot for an epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				epochID, err := parseEpochArg(args[0])
				if err != nil {
					return nil, err
				}
				return e.quorum.StakeSnapshot(ctx, epochID)
			})
		},
	})
	return cmd
}

// NewAggregateCommand creates the aggregate command group.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Submit and read verifier aggregates",
	}
	addOfflineFlags(cmd, o)

	var (
		name         string
		dest         string
		ttl          uint32
		receipts     uint32
		stakeWeight  uint64
		receiptsRoot string
	)
	submitCmd := &cobra.Command{
		Use:   "submit <epoch>",
		Short: "Attest a route for a name in the current epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				caller, err := e.callerID()
				if err != nil {
					return nil, err
				}
				p := quorum.AggregateParams{TTLSeconds: ttl, ReceiptCount: receipts, StakeWeight: stakeWeight}
				if p.EpochID, err = parseEpochArg(args[0]); err != nil {
					return nil, err
				}
				if p.NameHash, err = ir.ParseName(name); err != nil {
					return nil, err
				}
				if p.DestHash, err = parseDest(dest); err != nil {
					return nil, err
				}
				if p.ReceiptsRoot, err = parseHashFlag("receipts-root", receiptsRoot); err != nil {
					return nil, err
				}
				return e.quorum.SubmitAggregate(ctx, caller, p)
			})
		},
	}
	submitCmd.Flags().StringVar(&name, "name", "", "domain name or 0x-prefixed name hash")
	submitCmd.Flags().StringVar(&dest, "dest", "", "destination or 0x-prefixed destination hash")
	submitCmd.Flags().Uint32Var(&ttl, "ttl", 0, "TTL in seconds")
	submitCmd.Flags().Uint32Var(&receipts, "receipts", 0, "number of receipts aggregated")
	submitCmd.Flags().Uint64Var(&stakeWeight, "stake-weight", 0, "stake weight behind the receipts")
	submitCmd.Flags().StringVar(&receiptsRoot, "receipts-root", "", "receipts merkle root (hex)")
	_ = submitCmd.MarkFlagRequired("name")
	_ = submitCmd.MarkFlagRequired("dest")

	showCmd := &cobra.Command{
		Use:   "show <epoch> <name> <submitter>",
		Short: "Print one aggregate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				epochID, err := parseEpochArg(args[0])
				if err != nil {
					return nil, err
				}
				nameHash, err := ir.ParseName(args[1])
				if err != nil {
					return nil, err
				}
				sub, err := ir.ParseIdentity(args[2])
				if err != nil {
					return nil, ir.NewInvalidArgument("submitter: %v", err)
				}
				return e.quorum.Aggregate(ctx, epochID, nameHash, sub)
			})
		},
	}

	var (
		listEpoch uint64
		listName  string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print aggregates, optionally filtered by epoch and name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				var filter quorum.AggregateFilter
				if cmd.Flags().Changed("epoch") {
					filter.EpochID = &listEpoch
				}
				if listName != "" {
					h, err := ir.ParseName(listName)
					if err != nil {
						return nil, err
					}
					filter.NameHash = &h
				}
				return e.quorum.Aggregates(ctx, filter)
			})
		},
	}
	listCmd.Flags().Uint64Var(&listEpoch, "epoch", 0, "only aggregates of this epoch")
	listCmd.Flags().StringVar(&listName, "name", "", "only aggregates for this name")

	cmd.AddCommand(submitCmd, showCmd, listCmd)
	return cmd
}

// NewAuthorityCommand creates the quorum authority command group.
func NewAuthorityCommand(rootOpts *RootOptions) *cobra.Command {
	o := &OfflineOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Link and inspect the quorum gate identity",
	}
	addOfflineFlags(cmd, o)

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Link the caller's identity as the quorum gate (once)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				caller, err := e.callerID()
				if err != nil {
					return nil, err
				}
				return e.quorum.InitQuorumAuthority(ctx, caller)
			})
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Print the linked quorum gate identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) (any, error) {
				return e.quorum.QuorumAuthority(ctx)
			})
		},
	})
	return cmd
}
