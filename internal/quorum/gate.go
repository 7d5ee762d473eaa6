package quorum

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// InitQuorumAuthority links the caller's identity as the gate authority.
// It can be done once; the registry admin then names the same identity as
// finalize_authority in the registry config.
func (s *Service) InitQuorumAuthority(ctx context.Context, caller ir.Identity) (ir.QuorumAuthority, error) {
	if err := checkCaller(caller); err != nil {
		return ir.QuorumAuthority{}, err
	}
	qa := ir.QuorumAuthority{Identity: caller, LinkedAtTick: s.clock.Tick()}
	if err := s.authority.Create(ctx, ir.QuorumAuthorityKey(), qa); err != nil {
		return ir.QuorumAuthority{}, store.Translate(err, "quorum authority")
	}
	s.log.Info("quorum authority linked", zap.String("identity", caller.Short()))
	return qa, nil
}

// QuorumAuthority returns the linked gate identity.
func (s *Service) QuorumAuthority(ctx context.Context) (ir.QuorumAuthority, error) {
	qa, err := s.authority.Get(ctx, ir.QuorumAuthorityKey())
	if err != nil {
		return qa, store.Translate(err, "quorum authority")
	}
	return qa, nil
}

// FinalizeIfQuorum finalizes the route attested by submitter's aggregate
// for (epochID, nameHash) if it satisfies the registry thresholds.
// destHash and ttlSeconds must match what was attested.
func (s *Service) FinalizeIfQuorum(ctx context.Context, epochID uint64, nameHash ir.Hash, submitter ir.Identity, destHash ir.Hash, ttlSeconds uint32) (ir.CanonicalRoute, error) {
	route, err := s.finalizeIfQuorum(ctx, epochID, nameHash, submitter, destHash, ttlSeconds)
	if err != nil {
		s.log.Info("finalize rejected",
			zap.Uint64("epoch", epochID),
			zap.String("name", nameHash.String()),
			zap.String("submitter", submitter.Short()),
			zap.String("code", string(ir.CodeOf(err))),
			zap.Error(err))
		return ir.CanonicalRoute{}, err
	}
	return route, nil
}

func (s *Service) finalizeIfQuorum(ctx context.Context, epochID uint64, nameHash ir.Hash, submitter ir.Identity, destHash ir.Hash, ttlSeconds uint32) (ir.CanonicalRoute, error) {
	cfg, err := s.registry.Config(ctx)
	if err != nil {
		return ir.CanonicalRoute{}, err
	}
	set, err := s.VerifierSet(ctx, epochID)
	if err != nil {
		return ir.CanonicalRoute{}, err
	}
	agg, err := s.Aggregate(ctx, epochID, nameHash, submitter)
	if err != nil {
		return ir.CanonicalRoute{}, err
	}

	if set.EpochID != epochID || agg.EpochID != epochID {
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeWrongEpoch,
			"records for epoch %d carry epochs %d and %d", epochID, set.EpochID, agg.EpochID)
	}
	if err := epoch.RequireCurrent(s.clock, cfg.EpochLen, epochID); err != nil {
		return ir.CanonicalRoute{}, err
	}

	if agg.NameHash != nameHash || agg.DestHash != destHash || agg.TTLSeconds != ttlSeconds {
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeAggregateMismatch,
			"aggregate attests dest %s ttl %d", agg.DestHash, agg.TTLSeconds)
	}
	if agg.ReceiptCount < cfg.MinReceipts {
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeNotEnoughReceipts,
			"%d receipts, need %d", agg.ReceiptCount, cfg.MinReceipts)
	}
	required := max(cfg.MinStakeWeight, set.ThresholdStakeWeight)
	if agg.StakeWeight < required {
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeNotEnoughStakeWeight,
			"stake weight %d, need %d", agg.StakeWeight, required)
	}

	token, err := s.mint(ctx)
	if err != nil {
		return ir.CanonicalRoute{}, err
	}
	ref, err := s.aggregates.Address(agg.Key())
	if err != nil {
		return ir.CanonicalRoute{}, err
	}
	return s.registry.FinalizeRoute(ctx, token, ir.FinalizeRequest{
		NameHash:     nameHash,
		DestHash:     destHash,
		TTLSeconds:   ttlSeconds,
		AggregateRef: ref,
	})
}

// mint creates a finalize capability with the gate key, after checking the
// key is the linked quorum authority.
func (s *Service) mint(ctx context.Context) (string, error) {
	if s.gate == nil {
		return "", ir.NewError(ir.ErrCodeUnauthorizedFinalize, "no gate key configured")
	}
	qa, err := s.QuorumAuthority(ctx)
	if err != nil {
		return "", err
	}
	if qa.Identity != s.gate.Identity() {
		return "", ir.NewError(ir.ErrCodeUnauthorizedFinalize,
			"gate key %s is not the linked authority %s", s.gate.Identity().Short(), qa.Identity.Short())
	}
	token, err := s.gate.Mint(capability.AudienceFinalize)
	if err != nil {
		return "", errors.Join(ir.NewError(ir.ErrCodeUnauthorizedFinalize, "mint capability"), err)
	}
	return token, nil
}
