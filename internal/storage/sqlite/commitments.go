package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

const commitmentColumns = `id, client_id, client_name, target_hours, window_type,
	rolling_window_weeks, hard_minimum, proof_required, created_at`

// InsertCommitment creates a commitment. A second commitment for the same
// client surfaces as ErrConflict.
func (o ops) InsertCommitment(ctx context.Context, c *types.Commitment) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO commitments (`+commitmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.ClientName, c.TargetHours, string(c.WindowType),
		c.RollingWindowWeeks, boolToInt(c.HardMinimum), boolToInt(c.ProofRequired), fmtTS(c.CreatedAt),
	)
	return wrapDBError("insert commitment", err)
}

// DeleteCommitment removes a commitment; reports cascade, allocations stay
// (they describe events, not the commitment).
func (o ops) DeleteCommitment(ctx context.Context, id string) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete commitment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete commitment %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetCommitment reads one commitment by id.
func (o ops) GetCommitment(ctx context.Context, id string) (*types.Commitment, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id = ?`, id)
	c, err := scanCommitment(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get commitment %s", id), err)
	}
	return c, nil
}

// GetCommitmentByClient reads one commitment by client id.
func (o ops) GetCommitmentByClient(ctx context.Context, clientID string) (*types.Commitment, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE client_id = ?`, clientID)
	c, err := scanCommitment(row)
	if err != nil {
		return nil, wrapDBError("get commitment by client", err)
	}
	return c, nil
}

// ListCommitments lists every commitment, oldest first.
func (o ops) ListCommitments(ctx context.Context) ([]*types.Commitment, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT `+commitmentColumns+` FROM commitments ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapDBError("list commitments", err)
	}
	defer rows.Close()

	var cs []*types.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, wrapDBError("list commitments", err)
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// InsertCommitmentReport persists one status snapshot.
func (o ops) InsertCommitmentReport(ctx context.Context, r *types.CommitmentReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ComputedAt.IsZero() {
		r.ComputedAt = time.Now().UTC()
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO commitment_reports (id, commitment_id, client_id, window_start, window_end, target_hours, actual_hours, status, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CommitmentID, r.ClientID, fmtTS(r.WindowStart), fmtTS(r.WindowEnd),
		r.TargetHours, r.ActualHours, string(r.Status), fmtTS(r.ComputedAt),
	)
	return wrapDBError("insert commitment report", err)
}

// InsertAllocation tags an event as contributing hours to a client. An
// unknown event id surfaces as ErrStructuralConstraint.
func (o ops) InsertAllocation(ctx context.Context, a *types.Allocation) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO allocations (id, canonical_event_id, client_id, type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.CanonicalEventID, a.ClientID, a.Type, fmtTS(a.CreatedAt),
	)
	return wrapDBError("insert allocation", err)
}

// AllocatedHours sums the duration of every non-cancelled allocated event
// for a client whose span overlaps [start, end). Events are counted whole;
// the window clips membership, not duration.
func (o ops) AllocatedHours(ctx context.Context, clientID string, start, end time.Time) (float64, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT e.start_ts, e.end_ts
		FROM allocations a
		JOIN canonical_events e ON e.id = a.canonical_event_id
		WHERE a.client_id = ? AND e.status != 'cancelled'
		  AND e.start_ts < ? AND e.end_ts > ?`,
		clientID, fmtTS(end), fmtTS(start))
	if err != nil {
		return 0, wrapDBError("allocated hours", err)
	}
	defer rows.Close()

	var hours float64
	for rows.Next() {
		var startTS, endTS string
		if err := rows.Scan(&startTS, &endTS); err != nil {
			return 0, wrapDBError("allocated hours", err)
		}
		s, err := parseTS(startTS)
		if err != nil {
			return 0, err
		}
		e, err := parseTS(endTS)
		if err != nil {
			return 0, err
		}
		hours += e.Sub(s).Hours()
	}
	return hours, rows.Err()
}

func scanCommitment(row rowScanner) (*types.Commitment, error) {
	var (
		c                 types.Commitment
		window, created   string
		hardMin, proofReq int
	)
	if err := row.Scan(&c.ID, &c.ClientID, &c.ClientName, &c.TargetHours, &window,
		&c.RollingWindowWeeks, &hardMin, &proofReq, &created); err != nil {
		return nil, err
	}
	c.WindowType = types.WindowType(window)
	c.HardMinimum = hardMin != 0
	c.ProofRequired = proofReq != 0
	var err error
	if c.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteAllCommitments erases the commitments table (reports cascade), used
// by the erasure cascade.
func (o ops) DeleteAllCommitments(ctx context.Context) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM commitments`)
	if err != nil {
		return 0, wrapDBError("delete all commitments", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("delete all commitments", err)
	}
	return int(n), nil
}
