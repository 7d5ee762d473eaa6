package quorum

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/store"
)

// Registry is the part of the canonical registry the quorum side uses.
// Implemented by *registry.Registry.
type Registry interface {
	Config(ctx context.Context) (ir.RegistryConfig, error)
	FinalizeRoute(ctx context.Context, token string, req ir.FinalizeRequest) (ir.CanonicalRoute, error)
}

// Service runs membership, snapshot, aggregate and gate operations.
// Safe for concurrent use.
type Service struct {
	sets       *store.Table[ir.VerifierSet]
	snapshots  *store.Table[ir.StakeSnapshot]
	aggregates *store.Table[ir.AggregateSubmission]
	authority  *store.Table[ir.QuorumAuthority]
	registry   Registry
	clock      epoch.Clock
	gate       *capability.Signer
	log        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithGate sets the key the gate mints finalize capabilities with.
// Without it FinalizeIfQuorum always fails.
func WithGate(gate *capability.Signer) Option {
	return func(s *Service) {
		s.gate = gate
	}
}

// New creates a quorum service over backend.
func New(backend store.Backend, clock epoch.Clock, registry Registry, opts ...Option) *Service {
	s := &Service{
		sets:       store.NewTable[ir.VerifierSet](backend, ir.KindVerifierSet),
		snapshots:  store.NewTable[ir.StakeSnapshot](backend, ir.KindStakeSnapshot),
		aggregates: store.NewTable[ir.AggregateSubmission](backend, ir.KindAggregate),
		authority:  store.NewTable[ir.QuorumAuthority](backend, ir.KindQuorumAuthority),
		registry:   registry,
		clock:      clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log).Named("quorum")
	return s
}

// admit enforces membership, then freshness, for a submission to epochID.
func (s *Service) admit(ctx context.Context, caller ir.Identity, epochID uint64) error {
	cfg, err := s.registry.Config(ctx)
	if err != nil {
		return err
	}
	set, err := s.VerifierSet(ctx, epochID)
	if err != nil {
		return err
	}
	if !set.IsMember(caller) {
		return ir.NewError(ir.ErrCodeNotVerifier, "%s is not a verifier for epoch %d", caller.Short(), epochID)
	}
	return epoch.RequireCurrent(s.clock, cfg.EpochLen, epochID)
}

func checkCaller(caller ir.Identity) error {
	if err := caller.Validate(); err != nil {
		return ir.NewInvalidArgument("caller: %v", err)
	}
	return nil
}
