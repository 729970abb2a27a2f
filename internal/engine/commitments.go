package engine

import (
	"context"
	"time"

	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// CreateCommitment persists a client-hour commitment.
func (e *Engine) CreateCommitment(ctx context.Context, c *types.Commitment) error {
	return e.store.InsertCommitment(ctx, c)
}

// GetCommitment reads one commitment by id.
func (e *Engine) GetCommitment(ctx context.Context, id string) (*types.Commitment, error) {
	return e.store.GetCommitment(ctx, id)
}

// ListCommitments lists every commitment.
func (e *Engine) ListCommitments(ctx context.Context) ([]*types.Commitment, error) {
	return e.store.ListCommitments(ctx)
}

// DeleteCommitment removes a commitment; allocations are kept, reports
// cascade.
func (e *Engine) DeleteCommitment(ctx context.Context, id string) error {
	return e.store.DeleteCommitment(ctx, id)
}

// CreateAllocation tags a canonical event as billable hours for a client.
func (e *Engine) CreateAllocation(ctx context.Context, a *types.Allocation) error {
	return e.store.InsertAllocation(ctx, a)
}

// CommitmentStatus computes compliance over the rolling window ending at
// asOf and persists the report snapshot. Actual hours sum allocated,
// non-cancelled events overlapping the window; 20% over target is "over".
func (e *Engine) CommitmentStatus(ctx context.Context, commitmentID string, asOf time.Time) (*types.CommitmentReport, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}
	var report *types.CommitmentReport
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		c, err := tx.GetCommitment(ctx, commitmentID)
		if err != nil {
			return err
		}
		windowStart := asOf.Add(-time.Duration(c.RollingWindowWeeks) * 7 * 24 * time.Hour)
		actual, err := tx.AllocatedHours(ctx, c.ClientID, windowStart, asOf)
		if err != nil {
			return err
		}

		status := types.ComplianceUnder
		switch {
		case actual > c.TargetHours*1.2:
			status = types.ComplianceOver
		case actual >= c.TargetHours:
			status = types.ComplianceCompliant
		}

		report = &types.CommitmentReport{
			CommitmentID: c.ID,
			ClientID:     c.ClientID,
			WindowStart:  windowStart.UTC(),
			WindowEnd:    asOf.UTC(),
			TargetHours:  c.TargetHours,
			ActualHours:  actual,
			Status:       status,
			ComputedAt:   e.now(),
		}
		return tx.InsertCommitmentReport(ctx, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
