// Package types defines the core data structures for the tminus calendar
// graph engine: canonical events, constraints, relationships, commitments,
// and the registry/deletion records that surround them.
package types

import (
	"fmt"
	"time"
)

// EventStatus is the lifecycle status of a canonical event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Transparency controls whether an event blocks availability.
type Transparency string

const (
	TransparencyOpaque      Transparency = "opaque"
	TransparencyTransparent Transparency = "transparent"
)

// EventSource identifies where a canonical event originated.
type EventSource string

const (
	SourceProvider EventSource = "provider"
	SourceICSFeed  EventSource = "ics_feed"
	SourceSystem   EventSource = "system"
)

// InternalAccountID is the origin account of derived (constraint-projected)
// events. Buffer constraints with applies_to=external skip events from it.
const InternalAccountID = "internal"

// LocalAuthority is the authority marker value for fields owned by the
// local user rather than a provider account.
const LocalAuthority = "tminus"

// ProviderAuthority returns the authority marker for a provider account.
func ProviderAuthority(accountID string) string {
	return "provider:" + accountID
}

// TrackedFields is the closed set of canonical event fields that carry
// authority markers. Order is stable; conflict lists follow it.
var TrackedFields = []string{
	"title",
	"description",
	"location",
	"start_ts",
	"end_ts",
	"timezone",
	"status",
	"visibility",
	"transparency",
	"all_day",
	"recurrence_rule",
}

// CanonicalEvent is the authoritative merged record for one calendar event.
// (origin_account_id, origin_event_id) is unique within an actor's store.
type CanonicalEvent struct {
	ID                string            `json:"canonical_event_id"`
	OriginAccountID   string            `json:"origin_account_id"`
	OriginEventID     string            `json:"origin_event_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Location          string            `json:"location,omitempty"`
	StartTS           time.Time         `json:"start_ts"`
	EndTS             time.Time         `json:"end_ts"`
	Timezone          string            `json:"timezone,omitempty"`
	Status            EventStatus       `json:"status"`
	Visibility        string            `json:"visibility,omitempty"`
	Transparency      Transparency      `json:"transparency,omitempty"`
	AllDay            bool              `json:"all_day"`
	RecurrenceRule    string            `json:"recurrence_rule,omitempty"`
	Source            EventSource       `json:"source"`
	Version           int               `json:"version"`
	ConstraintID      string            `json:"constraint_id,omitempty"`
	AuthorityMarkers  map[string]string `json:"authority_markers"`
	ParticipantHashes []string          `json:"participant_hashes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate checks the structural invariants of a canonical event.
func (e *CanonicalEvent) Validate() error {
	if e.OriginAccountID == "" {
		return fmt.Errorf("origin_account_id is required")
	}
	if e.OriginEventID == "" {
		return fmt.Errorf("origin_event_id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if e.StartTS.After(e.EndTS) {
		return fmt.Errorf("start_ts %s is after end_ts %s", e.StartTS.Format(time.RFC3339), e.EndTS.Format(time.RFC3339))
	}
	switch e.Status {
	case StatusConfirmed, StatusTentative, StatusCancelled:
	default:
		return fmt.Errorf("invalid status %q", e.Status)
	}
	switch e.Source {
	case SourceProvider, SourceICSFeed, SourceSystem:
	default:
		return fmt.Errorf("invalid source %q", e.Source)
	}
	if e.Source == SourceSystem && e.ConstraintID == "" {
		return fmt.Errorf("system events must carry constraint_id")
	}
	return nil
}

// IsDerived reports whether the event is a projection owned by a constraint.
func (e *CanonicalEvent) IsDerived() bool {
	return e.Source == SourceSystem && e.ConstraintID != ""
}

// MirrorState is the lifecycle of an event mirror on another account.
type MirrorState string

const (
	MirrorPending  MirrorState = "PENDING"
	MirrorSynced   MirrorState = "SYNCED"
	MirrorDeleting MirrorState = "DELETING"
	MirrorDeleted  MirrorState = "DELETED"
	MirrorFailed   MirrorState = "FAILED"
)

// Mirror is a structural reference to a shadow copy of a canonical event
// living on a target account's provider calendar. Mirrors are write targets
// only, never data sources.
type Mirror struct {
	ID               string      `json:"mirror_id"`
	CanonicalEventID string      `json:"canonical_event_id"`
	TargetAccountID  string      `json:"target_account_id"`
	TargetCalendarID string      `json:"target_calendar_id"`
	ProviderEventID  string      `json:"provider_event_id,omitempty"`
	State            MirrorState `json:"state"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
