// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/RamXX/tminus-sub002/internal/storage/sqlite/migrations"
)

// Migration represents a single schema migration. The list is append-only
// and is the single source of schema truth: a fresh install (schema.go plus
// every migration) and an upgraded database converge on identical schema.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

var migrationsList = []Migration{
	{"participant_hashes_column", migrations.MigrateParticipantHashesColumn},
	{"journal_change_index", migrations.MigrateJournalChangeIndex},
	{"commitment_reports_table", migrations.MigrateCommitmentReportsTable},
	{"drift_alerts_display_name", migrations.MigrateDriftAlertsDisplayName},
}

// SchemaVersion is the version recorded after all migrations apply.
var SchemaVersion = len(migrationsList)

// RunMigrations applies any unapplied migrations inside a single exclusive
// transaction and records the new version in _schema_meta. Idempotent:
// every operation path calls it through New.
func RunMigrations(db *sql.DB) error {
	// PRAGMA foreign_keys must change outside a transaction.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	// EXCLUSIVE serializes migrations across processes sharing the file.
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	current := 0
	var v string
	err := db.QueryRow(`SELECT value FROM _schema_meta WHERE key = 'schema_version'`).Scan(&v)
	if err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			current = n
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i, migration := range migrationsList {
		if i < current {
			continue
		}
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec(
		`INSERT INTO _schema_meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}
