package types

import (
	"fmt"
	"time"
)

// RelationshipCategory buckets a contact.
type RelationshipCategory string

const (
	CategoryFamily    RelationshipCategory = "FAMILY"
	CategoryInvestor  RelationshipCategory = "INVESTOR"
	CategoryFriend    RelationshipCategory = "FRIEND"
	CategoryClient    RelationshipCategory = "CLIENT"
	CategoryBoard     RelationshipCategory = "BOARD"
	CategoryColleague RelationshipCategory = "COLLEAGUE"
	CategoryOther     RelationshipCategory = "OTHER"
)

// ValidCategory reports whether c is a known relationship category.
func ValidCategory(c RelationshipCategory) bool {
	switch c {
	case CategoryFamily, CategoryInvestor, CategoryFriend, CategoryClient, CategoryBoard, CategoryColleague, CategoryOther:
		return true
	}
	return false
}

// Relationship is one contact edge in the per-user graph. ParticipantHash
// is an opaque SHA-256-style identifier; the actor never stores raw email
// addresses.
type Relationship struct {
	ID                         string               `json:"relationship_id"`
	ParticipantHash            string               `json:"participant_hash"`
	DisplayName                string               `json:"display_name,omitempty"`
	Category                   RelationshipCategory `json:"category"`
	ClosenessWeight            float64              `json:"closeness_weight"`
	City                       string               `json:"city,omitempty"`
	Timezone                   string               `json:"timezone,omitempty"`
	InteractionFrequencyTarget int                  `json:"interaction_frequency_target,omitempty"` // days
	LastInteractionTS          *time.Time           `json:"last_interaction_ts,omitempty"`
	CreatedAt                  time.Time            `json:"created_at"`
	UpdatedAt                  time.Time            `json:"updated_at"`
}

// Validate checks the relationship per the data model.
func (r *Relationship) Validate() error {
	if r.ParticipantHash == "" {
		return fmt.Errorf("participant_hash is required")
	}
	if !ValidCategory(r.Category) {
		return fmt.Errorf("invalid category %q", r.Category)
	}
	if r.ClosenessWeight < 0 || r.ClosenessWeight > 1 {
		return fmt.Errorf("closeness_weight must be in [0,1], got %g", r.ClosenessWeight)
	}
	if r.Timezone != "" && !ValidTimezone(r.Timezone) {
		return fmt.Errorf("invalid timezone %q", r.Timezone)
	}
	if r.InteractionFrequencyTarget < 0 {
		return fmt.Errorf("interaction_frequency_target must be positive, got %d", r.InteractionFrequencyTarget)
	}
	return nil
}

// Outcome classifies one ledger entry of the interaction history.
type Outcome string

const (
	OutcomeAttended         Outcome = "ATTENDED"
	OutcomeCanceledByThem   Outcome = "CANCELED_BY_THEM"
	OutcomeCanceledByMe     Outcome = "CANCELED_BY_ME"
	OutcomeNoShowThem       Outcome = "NO_SHOW_THEM"
	OutcomeNoShowMe         Outcome = "NO_SHOW_ME"
	OutcomeMovedLastMinThem Outcome = "MOVED_LAST_MINUTE_THEM"
	OutcomeMovedLastMinMe   Outcome = "MOVED_LAST_MINUTE_ME"
)

// OutcomeWeights is the fixed outcome → score-weight table. "_ME" variants
// are neutral: the user's own behavior never penalizes the contact.
var OutcomeWeights = map[Outcome]float64{
	OutcomeAttended:         1.0,
	OutcomeCanceledByThem:   -0.5,
	OutcomeCanceledByMe:     0.0,
	OutcomeNoShowThem:       -1.0,
	OutcomeNoShowMe:         0.0,
	OutcomeMovedLastMinThem: -0.3,
	OutcomeMovedLastMinMe:   0.0,
}

// LedgerEntry is one append-only interaction outcome.
type LedgerEntry struct {
	ID               string    `json:"ledger_id"`
	ParticipantHash  string    `json:"participant_hash"`
	Outcome          Outcome   `json:"outcome"`
	Weight           float64   `json:"weight"`
	CanonicalEventID string    `json:"canonical_event_id,omitempty"`
	Note             string    `json:"note,omitempty"`
	TS               time.Time `json:"ts"`
}

// Validate checks the ledger entry and stamps the fixed weight.
func (l *LedgerEntry) Validate() error {
	if l.ParticipantHash == "" {
		return fmt.Errorf("participant_hash is required")
	}
	w, ok := OutcomeWeights[l.Outcome]
	if !ok {
		return fmt.Errorf("invalid outcome %q", l.Outcome)
	}
	l.Weight = w
	return nil
}

// MilestoneKind classifies a personal date.
type MilestoneKind string

const (
	MilestoneBirthday    MilestoneKind = "birthday"
	MilestoneAnniversary MilestoneKind = "anniversary"
	MilestoneGraduation  MilestoneKind = "graduation"
	MilestoneFunding     MilestoneKind = "funding"
	MilestoneRelocation  MilestoneKind = "relocation"
	MilestoneCustom      MilestoneKind = "custom"
)

// Milestone is a per-relationship personal date, optionally recurring
// annually. Deleting a relationship cascades its milestones.
type Milestone struct {
	ID              string        `json:"milestone_id"`
	ParticipantHash string        `json:"participant_hash"`
	Kind            MilestoneKind `json:"kind"`
	Date            string        `json:"date"` // YYYY-MM-DD
	RecursAnnually  bool          `json:"recurs_annually"`
	Note            string        `json:"note,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Validate checks the milestone, including that Date is a real calendar day.
func (m *Milestone) Validate() error {
	if m.ParticipantHash == "" {
		return fmt.Errorf("participant_hash is required")
	}
	switch m.Kind {
	case MilestoneBirthday, MilestoneAnniversary, MilestoneGraduation, MilestoneFunding, MilestoneRelocation, MilestoneCustom:
	default:
		return fmt.Errorf("invalid milestone kind %q", m.Kind)
	}
	if _, err := time.Parse("2006-01-02", m.Date); err != nil {
		return fmt.Errorf("invalid date %q: must be YYYY-MM-DD", m.Date)
	}
	return nil
}

// DriftAlert is one row of the replaceable precomputed drift snapshot.
type DriftAlert struct {
	ParticipantHash string               `json:"participant_hash"`
	DisplayName     string               `json:"display_name,omitempty"`
	Category        RelationshipCategory `json:"category"`
	Urgency         float64              `json:"urgency"`
	DriftRatio      float64              `json:"drift_ratio"`
	DaysOverdue     int                  `json:"days_overdue"`
	ComputedAt      time.Time            `json:"computed_at"`
}
