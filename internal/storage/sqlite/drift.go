package sqlite

import (
	"context"
	"time"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// ReplaceDriftAlerts swaps the precomputed drift snapshot wholesale.
// Callers run this inside a transaction so readers never observe a
// half-replaced table.
func (o ops) ReplaceDriftAlerts(ctx context.Context, alerts []types.DriftAlert) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM drift_alerts`); err != nil {
		return wrapDBError("replace drift alerts", err)
	}
	now := time.Now().UTC()
	for _, a := range alerts {
		computedAt := a.ComputedAt
		if computedAt.IsZero() {
			computedAt = now
		}
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO drift_alerts (participant_hash, display_name, category, urgency, drift_ratio, days_overdue, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ParticipantHash, a.DisplayName, string(a.Category), a.Urgency, a.DriftRatio, a.DaysOverdue, fmtTS(computedAt),
		)
		if err != nil {
			return wrapDBError("replace drift alerts", err)
		}
	}
	return nil
}

// ListDriftAlerts returns the current snapshot, most urgent first.
func (o ops) ListDriftAlerts(ctx context.Context) ([]types.DriftAlert, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT participant_hash, display_name, category, urgency, drift_ratio, days_overdue, computed_at
		FROM drift_alerts ORDER BY urgency DESC, participant_hash`)
	if err != nil {
		return nil, wrapDBError("list drift alerts", err)
	}
	defer rows.Close()

	var alerts []types.DriftAlert
	for rows.Next() {
		var (
			a                  types.DriftAlert
			category, computed string
		)
		if err := rows.Scan(&a.ParticipantHash, &a.DisplayName, &category, &a.Urgency, &a.DriftRatio, &a.DaysOverdue, &computed); err != nil {
			return nil, wrapDBError("list drift alerts", err)
		}
		a.Category = types.RelationshipCategory(category)
		if a.ComputedAt, err = parseTS(computed); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
