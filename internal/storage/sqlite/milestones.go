package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// InsertMilestone records a personal date for a relationship. Inserting
// against an unknown participant hash surfaces as ErrStructuralConstraint.
func (o ops) InsertMilestone(ctx context.Context, m *types.Milestone) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO milestones (id, participant_hash, kind, date, recurs_annually, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ParticipantHash, string(m.Kind), m.Date, boolToInt(m.RecursAnnually), m.Note, fmtTS(m.CreatedAt),
	)
	return wrapDBError("insert milestone", err)
}

// DeleteMilestone removes one milestone by id.
func (o ops) DeleteMilestone(ctx context.Context, id string) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete milestone", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete milestone %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMilestones lists one participant's milestones, earliest date first.
func (o ops) ListMilestones(ctx context.Context, participantHash string) ([]*types.Milestone, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, participant_hash, kind, date, recurs_annually, note, created_at
		FROM milestones WHERE participant_hash = ? ORDER BY date, id`, participantHash)
	if err != nil {
		return nil, wrapDBError("list milestones", err)
	}
	defer rows.Close()
	return scanMilestones(rows)
}

// ListAllMilestones lists every milestone across all relationships. Used by
// availability expansion, which blocks milestone days wholesale.
func (o ops) ListAllMilestones(ctx context.Context) ([]*types.Milestone, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, participant_hash, kind, date, recurs_annually, note, created_at
		FROM milestones ORDER BY date, id`)
	if err != nil {
		return nil, wrapDBError("list all milestones", err)
	}
	defer rows.Close()
	return scanMilestones(rows)
}

func scanMilestones(rows *sql.Rows) ([]*types.Milestone, error) {
	var ms []*types.Milestone
	for rows.Next() {
		var (
			m             types.Milestone
			kind, created string
			recurs        int
		)
		if err := rows.Scan(&m.ID, &m.ParticipantHash, &kind, &m.Date, &recurs, &m.Note, &created); err != nil {
			return nil, wrapDBError("scan milestone", err)
		}
		m.Kind = types.MilestoneKind(kind)
		m.RecursAnnually = recurs != 0
		var err error
		if m.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		ms = append(ms, &m)
	}
	return ms, rows.Err()
}
