package types

import (
	"fmt"
	"time"
)

// WindowType sizes a commitment's reporting window.
type WindowType string

const (
	WindowWeekly  WindowType = "WEEKLY"
	WindowMonthly WindowType = "MONTHLY"
)

// ComplianceStatus is the result of a commitment status computation.
type ComplianceStatus string

const (
	ComplianceUnder     ComplianceStatus = "under"
	ComplianceCompliant ComplianceStatus = "compliant"
	ComplianceOver      ComplianceStatus = "over"
)

// Commitment is a client-hour promise tracked over a rolling window.
// ClientID is unique while the commitment exists.
type Commitment struct {
	ID                 string     `json:"commitment_id"`
	ClientID           string     `json:"client_id"`
	ClientName         string     `json:"client_name,omitempty"`
	TargetHours        float64    `json:"target_hours"`
	WindowType         WindowType `json:"window_type"`
	RollingWindowWeeks int        `json:"rolling_window_weeks"`
	HardMinimum        bool       `json:"hard_minimum"`
	ProofRequired      bool       `json:"proof_required"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Validate checks the commitment and applies the default window.
func (c *Commitment) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.TargetHours <= 0 {
		return fmt.Errorf("target_hours must be positive, got %g", c.TargetHours)
	}
	switch c.WindowType {
	case WindowWeekly, WindowMonthly:
	default:
		return fmt.Errorf("invalid window_type %q", c.WindowType)
	}
	if c.RollingWindowWeeks == 0 {
		c.RollingWindowWeeks = 4
	}
	if c.RollingWindowWeeks < 0 {
		return fmt.Errorf("rolling_window_weeks must be positive, got %d", c.RollingWindowWeeks)
	}
	return nil
}

// CommitmentReport is a snapshot persisted by each status computation.
type CommitmentReport struct {
	ID           string           `json:"report_id"`
	CommitmentID string           `json:"commitment_id"`
	ClientID     string           `json:"client_id"`
	WindowStart  time.Time        `json:"window_start"`
	WindowEnd    time.Time        `json:"window_end"`
	TargetHours  float64          `json:"target_hours"`
	ActualHours  float64          `json:"actual_hours"`
	Status       ComplianceStatus `json:"status"`
	ComputedAt   time.Time        `json:"computed_at"`
}

// Allocation tags a canonical event as contributing hours to a client.
type Allocation struct {
	ID               string    `json:"allocation_id"`
	CanonicalEventID string    `json:"canonical_event_id"`
	ClientID         string    `json:"client_id"`
	Type             string    `json:"type"` // e.g. BILLABLE
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the allocation.
func (a *Allocation) Validate() error {
	if a.CanonicalEventID == "" {
		return fmt.Errorf("canonical_event_id is required")
	}
	if a.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if a.Type == "" {
		a.Type = "BILLABLE"
	}
	return nil
}
