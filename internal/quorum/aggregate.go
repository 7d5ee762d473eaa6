package quorum

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// AggregateParams is what a verifier attests for one name in one epoch.
type AggregateParams struct {
	EpochID      uint64  `json:"epoch_id"`
	NameHash     ir.Hash `json:"name_hash"`
	DestHash     ir.Hash `json:"dest_hash"`
	TTLSeconds   uint32  `json:"ttl_s"`
	ReceiptCount uint32  `json:"receipt_count"`
	StakeWeight  uint64  `json:"stake_weight"`
	ReceiptsRoot ir.Hash `json:"receipts_root"`
}

// AggregateFilter narrows ListAggregates. Nil fields match everything.
type AggregateFilter struct {
	EpochID  *uint64
	NameHash *ir.Hash
}

// SubmitAggregate records the caller's attestation. Membership and
// freshness are checked as for stake snapshots; the record is keyed by
// (epoch, name, caller) and can be written once.
func (s *Service) SubmitAggregate(ctx context.Context, caller ir.Identity, p AggregateParams) (ir.AggregateSubmission, error) {
	if err := checkCaller(caller); err != nil {
		return ir.AggregateSubmission{}, err
	}
	if p.NameHash.IsZero() {
		return ir.AggregateSubmission{}, ir.NewInvalidArgument("name_hash is required")
	}
	if err := s.admit(ctx, caller, p.EpochID); err != nil {
		s.log.Debug("aggregate rejected",
			zap.Uint64("epoch", p.EpochID),
			zap.String("name", p.NameHash.String()),
			zap.String("caller", caller.Short()),
			zap.Error(err))
		return ir.AggregateSubmission{}, err
	}
	agg := ir.AggregateSubmission{
		EpochID:         p.EpochID,
		NameHash:        p.NameHash,
		DestHash:        p.DestHash,
		TTLSeconds:      p.TTLSeconds,
		ReceiptCount:    p.ReceiptCount,
		StakeWeight:     p.StakeWeight,
		ReceiptsRoot:    p.ReceiptsRoot,
		Submitter:       caller,
		SubmittedAtTick: s.clock.Tick(),
	}
	if err := s.aggregates.Create(ctx, agg.Key(), agg); err != nil {
		return ir.AggregateSubmission{}, store.Translate(err, aggregateName(p.EpochID, p.NameHash, caller))
	}
	s.log.Info("aggregate submitted",
		zap.Uint64("epoch", agg.EpochID),
		zap.String("name", agg.NameHash.String()),
		zap.String("dest", agg.DestHash.String()),
		zap.Uint32("receipts", agg.ReceiptCount),
		zap.Uint64("stake_weight", agg.StakeWeight),
		zap.String("submitter", caller.Short()))
	return agg, nil
}

// Aggregate returns one submission.
func (s *Service) Aggregate(ctx context.Context, epochID uint64, nameHash ir.Hash, submitter ir.Identity) (ir.AggregateSubmission, error) {
	agg, err := s.aggregates.Get(ctx, ir.AggregateKey(epochID, nameHash, submitter))
	if err != nil {
		return agg, store.Translate(err, aggregateName(epochID, nameHash, submitter))
	}
	return agg, nil
}

// Aggregates lists submissions matching filter in submission order.
func (s *Service) Aggregates(ctx context.Context, filter AggregateFilter) ([]ir.AggregateSubmission, error) {
	all, err := s.aggregates.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, agg := range all {
		if filter.EpochID != nil && agg.EpochID != *filter.EpochID {
			continue
		}
		if filter.NameHash != nil && agg.NameHash != *filter.NameHash {
			continue
		}
		out = append(out, agg)
	}
	return out, nil
}

func aggregateName(epochID uint64, nameHash ir.Hash, submitter ir.Identity) string {
	return fmt.Sprintf("aggregate (epoch %d, name %s, submitter %s)", epochID, nameHash, submitter.Short())
}
