package quorum

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// SubmitStakeSnapshot records the stake commitment for epochID. Only a
// member of the epoch's roster may submit, only while the epoch is current,
// and only once per epoch.
func (s *Service) SubmitStakeSnapshot(ctx context.Context, caller ir.Identity, epochID uint64, userStakeRoot ir.Hash, totalStake uint64) (ir.StakeSnapshot, error) {
	if err := checkCaller(caller); err != nil {
		return ir.StakeSnapshot{}, err
	}
	if err := s.admit(ctx, caller, epochID); err != nil {
		s.log.Debug("stake snapshot rejected",
			zap.Uint64("epoch", epochID),
			zap.String("caller", caller.Short()),
			zap.Error(err))
		return ir.StakeSnapshot{}, err
	}
	snap := ir.StakeSnapshot{
		EpochID:       epochID,
		TotalStake:    totalStake,
		UserStakeRoot: userStakeRoot,
		Submitter:     caller,
		CreatedAtTick: s.clock.Tick(),
	}
	if err := s.snapshots.Create(ctx, ir.StakeSnapshotKey(epochID), snap); err != nil {
		return ir.StakeSnapshot{}, store.Translate(err, snapshotName(epochID))
	}
	s.log.Info("stake snapshot submitted",
		zap.Uint64("epoch", epochID),
		zap.Uint64("total_stake", totalStake),
		zap.String("root", userStakeRoot.String()),
		zap.String("submitter", caller.Short()))
	return snap, nil
}

// StakeSnapshot returns the snapshot for epochID.
func (s *Service) StakeSnapshot(ctx context.Context, epochID uint64) (ir.StakeSnapshot, error) {
	snap, err := s.snapshots.Get(ctx, ir.StakeSnapshotKey(epochID))
	if err != nil {
		return snap, store.Translate(err, snapshotName(epochID))
	}
	return snap, nil
}

func snapshotName(epochID uint64) string {
	return fmt.Sprintf("stake snapshot for epoch %d", epochID)
}
