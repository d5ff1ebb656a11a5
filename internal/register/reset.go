package register

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
)

// ExecuteReset clears the ledger, the pending payments and the session, and
// returns the workflow to its first step. It is refused with a
// *workflow.GuardViolationError, leaving everything untouched, until the
// workflow reached its last step.
//
// All keys are written by one batch: either every component is cleared or
// none is. A *kvstore.PersistenceDegradedError means the reset is effective
// in memory but reached no backend.
func (r *Register) ExecuteReset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.guard.CheckReset(); err != nil {
		r.logger.Warn("reset refused", zap.Error(err))
		return err
	}

	b := r.kv.NewBatch()
	// The ledger reset writes the sales key after the pending clear, so the
	// emptied ledger is the value that sticks.
	r.pending.StageClear(ctx, b)
	r.ledger.StageReset(ctx, b)
	r.sessions.StageReset(ctx, b)
	b.OnCommit(r.guard.Reset)

	err := b.Commit(ctx)
	if err != nil && !kvstore.IsDegraded(err) {
		r.logger.Error("reset failed", zap.Error(err))
		return fmt.Errorf("failed to reset register: %w", err)
	}
	if err != nil {
		r.logger.Warn("reset applied in memory only", zap.Error(err))
	} else {
		r.logger.Info("register reset")
	}
	return err
}
