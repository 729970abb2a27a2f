package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// InsertMirror creates a mirror row in PENDING state unless the caller set
// another state explicitly.
func (o ops) InsertMirror(ctx context.Context, m *types.Mirror) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.State == "" {
		m.State = types.MirrorPending
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO event_mirrors (id, canonical_event_id, target_account_id, target_calendar_id, provider_event_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CanonicalEventID, m.TargetAccountID, m.TargetCalendarID,
		m.ProviderEventID, string(m.State), fmtTS(m.CreatedAt), fmtTS(m.UpdatedAt),
	)
	return wrapDBError("insert mirror", err)
}

// MirrorsForEvent lists the mirrors of one canonical event.
func (o ops) MirrorsForEvent(ctx context.Context, canonicalEventID string) ([]*types.Mirror, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, canonical_event_id, target_account_id, target_calendar_id, provider_event_id, state, created_at, updated_at
		FROM event_mirrors WHERE canonical_event_id = ? ORDER BY created_at, id`, canonicalEventID)
	if err != nil {
		return nil, wrapDBError("list mirrors", err)
	}
	defer rows.Close()

	var mirrors []*types.Mirror
	for rows.Next() {
		var (
			m                       types.Mirror
			state, created, updated string
		)
		if err := rows.Scan(&m.ID, &m.CanonicalEventID, &m.TargetAccountID, &m.TargetCalendarID, &m.ProviderEventID, &state, &created, &updated); err != nil {
			return nil, wrapDBError("list mirrors", err)
		}
		m.State = types.MirrorState(state)
		if m.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if m.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		mirrors = append(mirrors, &m)
	}
	return mirrors, rows.Err()
}

// UpdateMirrorState advances a mirror through its state machine.
func (o ops) UpdateMirrorState(ctx context.Context, mirrorID string, state types.MirrorState) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE event_mirrors SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), fmtTS(time.Now()), mirrorID)
	if err != nil {
		return wrapDBError("update mirror state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update mirror %s: %w", mirrorID, ErrNotFound)
	}
	return nil
}

// DeleteMirrorsForEvent removes every mirror of one event, returning the
// count removed.
func (o ops) DeleteMirrorsForEvent(ctx context.Context, canonicalEventID string) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM event_mirrors WHERE canonical_event_id = ?`, canonicalEventID)
	if err != nil {
		return 0, wrapDBError("delete mirrors", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("delete mirrors", err)
}

// DeleteAllMirrors removes every mirror row (deletion workflow step 2).
func (o ops) DeleteAllMirrors(ctx context.Context) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM event_mirrors`)
	if err != nil {
		return 0, wrapDBError("delete all mirrors", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("delete all mirrors", err)
}
