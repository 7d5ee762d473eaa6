package quorum

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// InitVerifierSet creates the roster for epochID. The caller becomes admin.
func (s *Service) InitVerifierSet(ctx context.Context, caller ir.Identity, epochID, threshold uint64, members []ir.Identity) (ir.VerifierSet, error) {
	if err := checkCaller(caller); err != nil {
		return ir.VerifierSet{}, err
	}
	if err := checkMembers(members); err != nil {
		return ir.VerifierSet{}, err
	}
	set := ir.VerifierSet{
		EpochID:              epochID,
		Admin:                caller,
		ThresholdStakeWeight: threshold,
		Members:              cloneMembers(members),
	}
	if err := s.sets.Create(ctx, ir.VerifierSetKey(epochID), set); err != nil {
		return ir.VerifierSet{}, store.Translate(err, setName(epochID))
	}
	s.log.Info("verifier set initialized",
		zap.Uint64("epoch", epochID),
		zap.Int("members", len(set.Members)),
		zap.Uint64("threshold", threshold))
	return set, nil
}

// UpdateVerifierSet replaces the threshold and members of an existing
// roster. Only its admin may do so.
func (s *Service) UpdateVerifierSet(ctx context.Context, caller ir.Identity, epochID, threshold uint64, members []ir.Identity) (ir.VerifierSet, error) {
	if err := checkCaller(caller); err != nil {
		return ir.VerifierSet{}, err
	}
	if err := checkMembers(members); err != nil {
		return ir.VerifierSet{}, err
	}
	set, err := s.sets.Update(ctx, ir.VerifierSetKey(epochID), func(cur *ir.VerifierSet) error {
		if cur.Admin != caller {
			return ir.NewError(ir.ErrCodeUnauthorized, "caller %s is not the admin of epoch %d", caller.Short(), epochID)
		}
		cur.ThresholdStakeWeight = threshold
		cur.Members = cloneMembers(members)
		return nil
	})
	if err != nil {
		return ir.VerifierSet{}, store.Translate(err, setName(epochID))
	}
	s.log.Info("verifier set updated",
		zap.Uint64("epoch", epochID),
		zap.Int("members", len(set.Members)),
		zap.Uint64("threshold", threshold))
	return set, nil
}

// VerifierSet returns the roster for epochID.
func (s *Service) VerifierSet(ctx context.Context, epochID uint64) (ir.VerifierSet, error) {
	set, err := s.sets.Get(ctx, ir.VerifierSetKey(epochID))
	if err != nil {
		return set, store.Translate(err, setName(epochID))
	}
	return set, nil
}

// checkMembers enforces the roster bound and rejects malformed or repeated
// identities.
func checkMembers(members []ir.Identity) error {
	if len(members) > ir.MaxVerifiers {
		return ir.NewError(ir.ErrCodeTooManyVerifiers, "%d members exceeds the maximum of %d", len(members), ir.MaxVerifiers)
	}
	seen := make(map[ir.Identity]struct{}, len(members))
	for i, m := range members {
		if err := m.Validate(); err != nil {
			return ir.NewInvalidArgument("members[%d]: %v", i, err)
		}
		if _, dup := seen[m]; dup {
			return ir.NewInvalidArgument("members[%d]: duplicate %s", i, m.Short())
		}
		seen[m] = struct{}{}
	}
	return nil
}

func cloneMembers(members []ir.Identity) []ir.Identity {
	out := make([]ir.Identity, len(members))
	copy(out, members)
	return out
}

func setName(epochID uint64) string {
	return fmt.Sprintf("verifier set for epoch %d", epochID)
}
