// Package migrations holds the individual schema migration steps. Each
// step is idempotent: it checks current state before altering anything, so
// re-running a step against an already-migrated database is a no-op.
package migrations

import (
	"database/sql"
	"fmt"
)

// columnExists reports whether a table already has the named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// MigrateParticipantHashesColumn adds participant_hashes to
// canonical_events for databases created before interaction propagation.
func MigrateParticipantHashesColumn(db *sql.DB) error {
	exists, err := columnExists(db, "canonical_events", "participant_hashes")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE canonical_events ADD COLUMN participant_hashes TEXT NOT NULL DEFAULT '[]'`)
	return err
}

// MigrateJournalChangeIndex adds the change_type index used by
// getEventConflicts.
func MigrateJournalChangeIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_change ON event_journal(change_type)`)
	return err
}

// MigrateCommitmentReportsTable creates the commitment_reports snapshot
// table for databases predating status persistence.
func MigrateCommitmentReportsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS commitment_reports (
			id TEXT PRIMARY KEY,
			commitment_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			target_hours REAL NOT NULL,
			actual_hours REAL NOT NULL,
			status TEXT NOT NULL,
			computed_at TEXT NOT NULL,
			FOREIGN KEY (commitment_id) REFERENCES commitments(id) ON DELETE CASCADE
		)`)
	return err
}

// MigrateDriftAlertsDisplayName adds display_name to drift_alerts so the
// snapshot can render without a relationships join.
func MigrateDriftAlertsDisplayName(db *sql.DB) error {
	exists, err := columnExists(db, "drift_alerts", "display_name")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE drift_alerts ADD COLUMN display_name TEXT NOT NULL DEFAULT ''`)
	return err
}
