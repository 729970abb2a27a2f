package types

import (
	"encoding/json"
	"time"
)

// ChangeType classifies a journal entry.
type ChangeType string

const (
	ChangeCreated           ChangeType = "created"
	ChangeUpdated           ChangeType = "updated"
	ChangeDeleted           ChangeType = "deleted"
	ChangeAuthorityConflict ChangeType = "authority_conflict"
)

// ConflictType marks whether a journal entry records an authority conflict.
type ConflictType string

const (
	ConflictNone          ConflictType = "none"
	ConflictFieldOverride ConflictType = "field_override"
)

// JournalEntry is one row of the append-only audit trail. Every observable
// mutation of a canonical event writes exactly one data-change entry, plus
// at most one authority_conflict entry per operation.
type JournalEntry struct {
	ID               string          `json:"journal_id"`
	CanonicalEventID string          `json:"canonical_event_id"`
	TS               time.Time       `json:"ts"`
	Actor            string          `json:"actor"`
	ChangeType       ChangeType      `json:"change_type"`
	Reason           string          `json:"reason,omitempty"`
	PatchJSON        json.RawMessage `json:"patch_json,omitempty"`
	ConflictType     ConflictType    `json:"conflict_type"`
	Resolution       json.RawMessage `json:"resolution,omitempty"`
}

// JournalFilter narrows a queryJournal call.
type JournalFilter struct {
	CanonicalEventID string     `json:"canonical_event_id,omitempty"`
	ChangeType       ChangeType `json:"change_type,omitempty"`
	Since            *time.Time `json:"since,omitempty"`
	Until            *time.Time `json:"until,omitempty"`
	Limit            int        `json:"limit,omitempty"`
}

// FieldConflict describes one field whose incoming authority differed from
// its current authority during a provider write. The write proceeds
// (provider wins); the conflict is journaled.
type FieldConflict struct {
	Field             string `json:"field"`
	CurrentAuthority  string `json:"current_authority"`
	IncomingAuthority string `json:"incoming_authority"`
	OldValue          any    `json:"old_value"`
	NewValue          any    `json:"new_value"`
}

// ConflictResolution is the resolution payload journaled alongside an
// authority_conflict entry.
type ConflictResolution struct {
	Strategy  string          `json:"strategy"`
	Conflicts []FieldConflict `json:"conflicts"`
}
