// Package storage defines the interface for a single actor's private store.
// One Store holds exactly one user's calendar graph; the actor layer
// serializes all access, so implementations do not need internal locking
// beyond what their engine requires.
package storage

import (
	"context"
	"time"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// EventFilter narrows listCanonicalEvents.
type EventFilter struct {
	AccountID    string     `json:"account_id,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
	ConstraintID string     `json:"constraint_id,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// SyncHealth summarizes the state of the actor store for diagnostics.
type SyncHealth struct {
	EventsByAccount map[string]int `json:"events_by_account"`
	JournalDepth    int            `json:"journal_depth"`
	ConflictCount   int            `json:"conflict_count"`
	MirrorCount     int            `json:"mirror_count"`
	LastWriteTS     *time.Time     `json:"last_write_ts,omitempty"`
}

// Ops is the set of row-level operations shared by the store and its
// transactions. Multi-table workflows run the same methods against a Tx.
type Ops interface {
	// Canonical events
	InsertEvent(ctx context.Context, ev *types.CanonicalEvent) error
	UpdateEvent(ctx context.Context, ev *types.CanonicalEvent) error
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (*types.CanonicalEvent, error)
	GetEventByOrigin(ctx context.Context, accountID, originEventID string) (*types.CanonicalEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*types.CanonicalEvent, error)
	ListEventsOverlapping(ctx context.Context, start, end time.Time, accountIDs []string) ([]*types.CanonicalEvent, error)
	ListEventsByAccount(ctx context.Context, accountID string) ([]*types.CanonicalEvent, error)
	EventsByConstraint(ctx context.Context, constraintID string) ([]*types.CanonicalEvent, error)
	DeleteAllEvents(ctx context.Context) (int, error)

	// Journal (append-only)
	InsertJournal(ctx context.Context, entry *types.JournalEntry) error
	QueryJournal(ctx context.Context, filter types.JournalFilter) ([]*types.JournalEntry, error)
	DeleteAllJournal(ctx context.Context) (int, error)

	// Mirrors
	InsertMirror(ctx context.Context, m *types.Mirror) error
	MirrorsForEvent(ctx context.Context, canonicalEventID string) ([]*types.Mirror, error)
	UpdateMirrorState(ctx context.Context, mirrorID string, state types.MirrorState) error
	DeleteMirrorsForEvent(ctx context.Context, canonicalEventID string) (int, error)
	DeleteAllMirrors(ctx context.Context) (int, error)

	// Constraints
	InsertConstraint(ctx context.Context, c *types.Constraint) error
	UpdateConstraint(ctx context.Context, c *types.Constraint) error
	DeleteConstraint(ctx context.Context, id string) error
	GetConstraint(ctx context.Context, id string) (*types.Constraint, error)
	ListConstraints(ctx context.Context, kind types.ConstraintKind) ([]*types.Constraint, error)

	// Relationships and interaction ledger
	InsertRelationship(ctx context.Context, r *types.Relationship) error
	UpdateRelationship(ctx context.Context, r *types.Relationship) error
	DeleteRelationship(ctx context.Context, id string) error
	GetRelationship(ctx context.Context, id string) (*types.Relationship, error)
	GetRelationshipByHash(ctx context.Context, participantHash string) (*types.Relationship, error)
	ListRelationships(ctx context.Context) ([]*types.Relationship, error)
	UpdateLastInteraction(ctx context.Context, participantHashes []string, ts time.Time) (int, error)
	InsertLedgerEntry(ctx context.Context, e *types.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, participantHash string) ([]*types.LedgerEntry, error)

	// Milestones
	InsertMilestone(ctx context.Context, m *types.Milestone) error
	DeleteMilestone(ctx context.Context, id string) error
	ListMilestones(ctx context.Context, participantHash string) ([]*types.Milestone, error)
	ListAllMilestones(ctx context.Context) ([]*types.Milestone, error)

	// Drift alerts (replace-all snapshot)
	ReplaceDriftAlerts(ctx context.Context, alerts []types.DriftAlert) error
	ListDriftAlerts(ctx context.Context) ([]types.DriftAlert, error)

	// Commitments and allocations
	InsertCommitment(ctx context.Context, c *types.Commitment) error
	DeleteCommitment(ctx context.Context, id string) error
	GetCommitment(ctx context.Context, id string) (*types.Commitment, error)
	GetCommitmentByClient(ctx context.Context, clientID string) (*types.Commitment, error)
	ListCommitments(ctx context.Context) ([]*types.Commitment, error)
	InsertCommitmentReport(ctx context.Context, r *types.CommitmentReport) error
	InsertAllocation(ctx context.Context, a *types.Allocation) error
	AllocatedHours(ctx context.Context, clientID string, start, end time.Time) (float64, error)

	// Whole-store erasure
	DeleteRelationshipData(ctx context.Context) (int, error)
	DeleteAllConstraints(ctx context.Context) (int, error)
	DeleteAllCommitments(ctx context.Context) (int, error)

	// Diagnostics
	SyncHealth(ctx context.Context) (*SyncHealth, error)
}

// Tx is the transactional view of the store.
type Tx interface {
	Ops
}

// Store is one actor's private store.
type Store interface {
	Ops

	// RunInTransaction executes fn atomically: commit on nil return,
	// rollback on error or panic. Uses BEGIN IMMEDIATE on SQLite to
	// acquire the write lock early.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Path() string
}
