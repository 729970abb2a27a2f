package sqlite

const schema = `
-- Constraints (polymorphic: kind + config_json).
CREATE TABLE IF NOT EXISTS constraints (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    config_json TEXT NOT NULL DEFAULT '{}',
    active_from TEXT,
    active_to TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_constraints_kind ON constraints(kind);

-- Canonical events table: the merge target for every provider source.
CREATE TABLE IF NOT EXISTS canonical_events (
    id TEXT PRIMARY KEY,
    origin_account_id TEXT NOT NULL,
    origin_event_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    start_ts TEXT NOT NULL,
    end_ts TEXT NOT NULL,
    timezone TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'confirmed',
    visibility TEXT NOT NULL DEFAULT '',
    transparency TEXT NOT NULL DEFAULT 'opaque',
    all_day INTEGER NOT NULL DEFAULT 0,
    recurrence_rule TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT 'provider',
    version INTEGER NOT NULL DEFAULT 1,
    constraint_id TEXT REFERENCES constraints(id),
    authority_markers TEXT NOT NULL DEFAULT '{}',
    participant_hashes TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (origin_account_id, origin_event_id),
    CHECK (start_ts <= end_ts)
);

CREATE INDEX IF NOT EXISTS idx_events_account ON canonical_events(origin_account_id);
CREATE INDEX IF NOT EXISTS idx_events_window ON canonical_events(start_ts, end_ts);
CREATE INDEX IF NOT EXISTS idx_events_constraint ON canonical_events(constraint_id);

-- Event journal (append-only audit trail).
-- canonical_event_id is a lookup relation, not a foreign key: deletion
-- entries outlive their event row.
CREATE TABLE IF NOT EXISTS event_journal (
    id TEXT PRIMARY KEY,
    canonical_event_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    change_type TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    patch_json TEXT NOT NULL DEFAULT '{}',
    conflict_type TEXT NOT NULL DEFAULT 'none',
    resolution TEXT
);

CREATE INDEX IF NOT EXISTS idx_journal_event ON event_journal(canonical_event_id);
CREATE INDEX IF NOT EXISTS idx_journal_ts ON event_journal(ts);
CREATE INDEX IF NOT EXISTS idx_journal_change ON event_journal(change_type);

-- Event mirrors: outgoing structural references, write targets only.
CREATE TABLE IF NOT EXISTS event_mirrors (
    id TEXT PRIMARY KEY,
    canonical_event_id TEXT NOT NULL,
    target_account_id TEXT NOT NULL,
    target_calendar_id TEXT NOT NULL,
    provider_event_id TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'PENDING',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (canonical_event_id) REFERENCES canonical_events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_mirrors_event ON event_mirrors(canonical_event_id);

-- Relationships. participant_hash is the opaque contact identity; the
-- store never holds raw email addresses.
CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    participant_hash TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'OTHER',
    closeness_weight REAL NOT NULL DEFAULT 0.5,
    city TEXT NOT NULL DEFAULT '',
    timezone TEXT NOT NULL DEFAULT '',
    interaction_frequency_target INTEGER NOT NULL DEFAULT 0,
    last_interaction_ts TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Interaction ledger (append-only outcome history).
CREATE TABLE IF NOT EXISTS interaction_ledger (
    id TEXT PRIMARY KEY,
    participant_hash TEXT NOT NULL,
    outcome TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    canonical_event_id TEXT NOT NULL DEFAULT '',
    note TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL,
    FOREIGN KEY (participant_hash) REFERENCES relationships(participant_hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ledger_hash ON interaction_ledger(participant_hash);
CREATE INDEX IF NOT EXISTS idx_ledger_ts ON interaction_ledger(ts);

-- Milestones (per-relationship personal dates).
CREATE TABLE IF NOT EXISTS milestones (
    id TEXT PRIMARY KEY,
    participant_hash TEXT NOT NULL,
    kind TEXT NOT NULL,
    date TEXT NOT NULL,
    recurs_annually INTEGER NOT NULL DEFAULT 0,
    note TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (participant_hash) REFERENCES relationships(participant_hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_milestones_hash ON milestones(participant_hash);

-- Drift alerts: a wholly replaced precomputed snapshot.
CREATE TABLE IF NOT EXISTS drift_alerts (
    participant_hash TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'OTHER',
    urgency REAL NOT NULL DEFAULT 0,
    drift_ratio REAL NOT NULL DEFAULT 0,
    days_overdue INTEGER NOT NULL DEFAULT 0,
    computed_at TEXT NOT NULL,
    FOREIGN KEY (participant_hash) REFERENCES relationships(participant_hash) ON DELETE CASCADE
);

-- Time commitments. client_id is unique while the commitment exists.
CREATE TABLE IF NOT EXISTS commitments (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL UNIQUE,
    client_name TEXT NOT NULL DEFAULT '',
    target_hours REAL NOT NULL,
    window_type TEXT NOT NULL DEFAULT 'WEEKLY',
    rolling_window_weeks INTEGER NOT NULL DEFAULT 4,
    hard_minimum INTEGER NOT NULL DEFAULT 0,
    proof_required INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

-- Commitment status snapshots; cascade with their commitment.
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
);

-- Allocations tag canonical events as contributing hours to a client.
CREATE TABLE IF NOT EXISTS allocations (
    id TEXT PRIMARY KEY,
    canonical_event_id TEXT NOT NULL,
    client_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'BILLABLE',
    created_at TEXT NOT NULL,
    FOREIGN KEY (canonical_event_id) REFERENCES canonical_events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_allocations_client ON allocations(client_id);

-- Schema metadata (version row lives here).
CREATE TABLE IF NOT EXISTS _schema_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
