package sqlite

import (
	"context"
	"database/sql"

	"github.com/RamXX/tminus-sub002/internal/storage"
)

// SyncHealth aggregates diagnostic counters across the store.
func (o ops) SyncHealth(ctx context.Context) (*storage.SyncHealth, error) {
	h := &storage.SyncHealth{EventsByAccount: map[string]int{}}

	rows, err := o.q.QueryContext(ctx, `
		SELECT origin_account_id, COUNT(*) FROM canonical_events GROUP BY origin_account_id`)
	if err != nil {
		return nil, wrapDBError("sync health", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			account string
			n       int
		)
		if err := rows.Scan(&account, &n); err != nil {
			return nil, wrapDBError("sync health", err)
		}
		h.EventsByAccount[account] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("sync health", err)
	}

	row := o.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM event_journal),
			(SELECT COUNT(*) FROM event_journal WHERE change_type = 'authority_conflict'),
			(SELECT COUNT(*) FROM event_mirrors)`)
	if err := row.Scan(&h.JournalDepth, &h.ConflictCount, &h.MirrorCount); err != nil {
		return nil, wrapDBError("sync health", err)
	}

	var last sql.NullString
	row = o.q.QueryRowContext(ctx, `
		SELECT MAX(ts) FROM (
			SELECT MAX(updated_at) AS ts FROM canonical_events
			UNION ALL
			SELECT MAX(ts) AS ts FROM event_journal
		)`)
	if err := row.Scan(&last); err != nil {
		return nil, wrapDBError("sync health", err)
	}
	if h.LastWriteTS, err = parseTSNull(last); err != nil {
		return nil, err
	}
	return h, nil
}
