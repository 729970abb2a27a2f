package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// InsertJournal appends one journal row. The journal is append-only; there
// is no update path.
func (o ops) InsertJournal(ctx context.Context, entry *types.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	if entry.ConflictType == "" {
		entry.ConflictType = types.ConflictNone
	}
	patch := "{}"
	if len(entry.PatchJSON) > 0 {
		patch = string(entry.PatchJSON)
	}
	var resolution any
	if len(entry.Resolution) > 0 {
		resolution = string(entry.Resolution)
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO event_journal (id, canonical_event_id, ts, actor, change_type, reason, patch_json, conflict_type, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CanonicalEventID, fmtTS(entry.TS), entry.Actor,
		string(entry.ChangeType), entry.Reason, patch, string(entry.ConflictType), resolution,
	)
	return wrapDBError("insert journal", err)
}

// QueryJournal lists journal rows matching the filter, newest first.
func (o ops) QueryJournal(ctx context.Context, filter types.JournalFilter) ([]*types.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.CanonicalEventID != "" {
		where = append(where, "canonical_event_id = ?")
		args = append(args, filter.CanonicalEventID)
	}
	if filter.ChangeType != "" {
		where = append(where, "change_type = ?")
		args = append(args, string(filter.ChangeType))
	}
	if filter.Since != nil {
		where = append(where, "ts >= ?")
		args = append(args, fmtTS(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "ts <= ?")
		args = append(args, fmtTS(*filter.Until))
	}

	query := `SELECT id, canonical_event_id, ts, actor, change_type, reason, patch_json, conflict_type, resolution FROM event_journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT ?"
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query journal", err)
	}
	defer rows.Close()

	var entries []*types.JournalEntry
	for rows.Next() {
		var (
			e          types.JournalEntry
			ts, patch  string
			change     string
			conflict   string
			resolution sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CanonicalEventID, &ts, &e.Actor, &change, &e.Reason, &patch, &conflict, &resolution); err != nil {
			return nil, wrapDBError("query journal", err)
		}
		if e.TS, err = parseTS(ts); err != nil {
			return nil, err
		}
		e.ChangeType = types.ChangeType(change)
		e.ConflictType = types.ConflictType(conflict)
		e.PatchJSON = []byte(patch)
		if resolution.Valid {
			e.Resolution = []byte(resolution.String)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteAllJournal removes every journal row (deletion workflow step 3).
func (o ops) DeleteAllJournal(ctx context.Context) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM event_journal`)
	if err != nil {
		return 0, wrapDBError("delete all journal", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("delete all journal", err)
}
