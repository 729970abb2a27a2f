package types

import "time"

// User is one registry user row.
type User struct {
	UserID      string    `json:"user_id"`
	OrgID       string    `json:"org_id,omitempty"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is one provider account bound to a user. A user has many.
type Account struct {
	AccountID       string    `json:"account_id"`
	UserID          string    `json:"user_id"`
	Provider        string    `json:"provider"`
	ProviderSubject string    `json:"provider_subject,omitempty"`
	Email           string    `json:"email,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// APIKey is one registry API key row.
type APIKey struct {
	KeyID     string    `json:"key_id"`
	UserID    string    `json:"user_id"`
	KeyHash   string    `json:"key_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletionStatus is the lifecycle of a deletion request.
type DeletionStatus string

const (
	DeletionPending    DeletionStatus = "pending"
	DeletionProcessing DeletionStatus = "processing"
	DeletionCompleted  DeletionStatus = "completed"
	DeletionFailed     DeletionStatus = "failed"
)

// DeletionRequest tracks a GDPR erasure request in the registry.
type DeletionRequest struct {
	RequestID   string         `json:"request_id"`
	UserID      string         `json:"user_id"`
	Status      DeletionStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// DeletionSummary carries the per-step row counts of a completed cascade.
// It contains no PII, only counts; field order is part of the certificate's
// canonical serialization.
type DeletionSummary struct {
	EventsDeleted              int `json:"events_deleted"`
	MirrorsDeleted             int `json:"mirrors_deleted"`
	JournalEntriesDeleted      int `json:"journal_entries_deleted"`
	RelationshipRecordsDeleted int `json:"relationship_records_deleted"`
	D1RowsDeleted              int `json:"d1_rows_deleted"`
	R2ObjectsDeleted           int `json:"r2_objects_deleted"`
	ProviderDeletionsEnqueued  int `json:"provider_deletions_enqueued"`
}

// DeletionCertificate is a signed, PII-free proof that a cascading deletion
// completed. Any holder of the master key can verify it independently.
type DeletionCertificate struct {
	CertID     string          `json:"certificate_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	DeletedAt  time.Time       `json:"deleted_at"`
	Summary    DeletionSummary `json:"deletion_summary"`
	ProofHash  string          `json:"proof_hash"` // lowercase hex, 64 chars
	Signature  string          `json:"signature"`  // lowercase hex, 64 chars
}

// StepResult reports one deletion-workflow step. Re-execution on a
// partially deleted state must still return OK with zero-or-positive counts.
type StepResult struct {
	Step    int    `json:"step"`
	Name    string `json:"name"`
	Deleted int    `json:"deleted"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
