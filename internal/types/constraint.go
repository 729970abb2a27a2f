package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ConstraintKind discriminates the polymorphic constraint variants.
type ConstraintKind string

const (
	KindTrip            ConstraintKind = "trip"
	KindWorkingHours    ConstraintKind = "working_hours"
	KindBuffer          ConstraintKind = "buffer"
	KindNoMeetingsAfter ConstraintKind = "no_meetings_after"
	KindOverride        ConstraintKind = "override"
)

// BlockPolicy controls the title of a trip's derived event.
type BlockPolicy string

const (
	BlockBusy  BlockPolicy = "BUSY"
	BlockTitle BlockPolicy = "TITLE"
)

// BufferType classifies buffer constraints. Travel and prep buffers expand
// before an event; cooldown expands after.
type BufferType string

const (
	BufferTravel   BufferType = "travel"
	BufferPrep     BufferType = "prep"
	BufferCooldown BufferType = "cooldown"
)

// Constraint is a polymorphic declaration that shapes availability. The
// variant-specific payload lives in Config, keyed by Kind.
type Constraint struct {
	ID         string          `json:"constraint_id"`
	Kind       ConstraintKind  `json:"kind"`
	Config     json.RawMessage `json:"config"`
	ActiveFrom *time.Time      `json:"active_from,omitempty"`
	ActiveTo   *time.Time      `json:"active_to,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TripConfig blocks a date range, optionally tagged with a destination city
// for reconnection suggestions. Projects exactly one derived canonical event.
type TripConfig struct {
	Name            string      `json:"name"`
	Timezone        string      `json:"timezone"`
	BlockPolicy     BlockPolicy `json:"block_policy"`
	DestinationCity string      `json:"destination_city,omitempty"`
}

// WorkingHoursConfig masks availability outside the configured window on
// the configured weekdays. Days use time.Weekday numbering (0 = Sunday).
type WorkingHoursConfig struct {
	Days      []int  `json:"days"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Timezone  string `json:"timezone"`
}

// BufferConfig pads events with busy time before or after.
type BufferConfig struct {
	Type      BufferType `json:"type"`
	Minutes   int        `json:"minutes"`
	AppliesTo string     `json:"applies_to"` // "all" or "external"
}

// NoMeetingsAfterConfig blocks every day from a cutoff time to midnight.
type NoMeetingsAfterConfig struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

// OverrideConfig annotates an exception; it produces no busy intervals.
type OverrideConfig struct {
	Reason string `json:"reason"`
}

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidHHMM reports whether s is a well-formed 24h HH:MM string.
func ValidHHMM(s string) bool {
	return hhmmRe.MatchString(s)
}

// ValidTimezone reports whether name resolves in the IANA tz database.
func ValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// ValidateConfig validates the variant payload for the constraint's kind.
// Error messages name the offending field.
func (c *Constraint) ValidateConfig() error {
	switch c.Kind {
	case KindTrip:
		var cfg TripConfig
		if err := json.Unmarshal(c.Config, &cfg); err != nil {
			return fmt.Errorf("trip config: %w", err)
		}
		if cfg.Name == "" {
			return fmt.Errorf("trip config: name is required")
		}
		if !ValidTimezone(cfg.Timezone) {
			return fmt.Errorf("trip config: invalid timezone %q", cfg.Timezone)
		}
		if cfg.BlockPolicy != BlockBusy && cfg.BlockPolicy != BlockTitle {
			return fmt.Errorf("trip config: invalid block_policy %q", cfg.BlockPolicy)
		}
		if c.ActiveFrom == nil || c.ActiveTo == nil {
			return fmt.Errorf("trip config: active_from and active_to are required")
		}
		if c.ActiveFrom.After(*c.ActiveTo) {
			return fmt.Errorf("trip config: active_from is after active_to")
		}
	case KindWorkingHours:
		var cfg WorkingHoursConfig
		if err := json.Unmarshal(c.Config, &cfg); err != nil {
			return fmt.Errorf("working_hours config: %w", err)
		}
		if len(cfg.Days) == 0 {
			return fmt.Errorf("working_hours config: days must be non-empty")
		}
		for _, d := range cfg.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("working_hours config: invalid day %d", d)
			}
		}
		if !ValidHHMM(cfg.StartTime) {
			return fmt.Errorf("working_hours config: invalid start_time %q", cfg.StartTime)
		}
		if !ValidHHMM(cfg.EndTime) {
			return fmt.Errorf("working_hours config: invalid end_time %q", cfg.EndTime)
		}
		if cfg.EndTime <= cfg.StartTime {
			return fmt.Errorf("working_hours config: end_time must be after start_time")
		}
		if !ValidTimezone(cfg.Timezone) {
			return fmt.Errorf("working_hours config: invalid timezone %q", cfg.Timezone)
		}
	case KindBuffer:
		var cfg BufferConfig
		if err := json.Unmarshal(c.Config, &cfg); err != nil {
			return fmt.Errorf("buffer config: %w", err)
		}
		switch cfg.Type {
		case BufferTravel, BufferPrep, BufferCooldown:
		default:
			return fmt.Errorf("buffer config: invalid type %q", cfg.Type)
		}
		if cfg.Minutes <= 0 {
			return fmt.Errorf("buffer config: minutes must be positive, got %d", cfg.Minutes)
		}
		if cfg.AppliesTo != "all" && cfg.AppliesTo != "external" {
			return fmt.Errorf("buffer config: invalid applies_to %q", cfg.AppliesTo)
		}
	case KindNoMeetingsAfter:
		var cfg NoMeetingsAfterConfig
		if err := json.Unmarshal(c.Config, &cfg); err != nil {
			return fmt.Errorf("no_meetings_after config: %w", err)
		}
		if !ValidHHMM(cfg.Time) {
			return fmt.Errorf("no_meetings_after config: invalid time %q", cfg.Time)
		}
		if !ValidTimezone(cfg.Timezone) {
			return fmt.Errorf("no_meetings_after config: invalid timezone %q", cfg.Timezone)
		}
	case KindOverride:
		var cfg OverrideConfig
		if err := json.Unmarshal(c.Config, &cfg); err != nil {
			return fmt.Errorf("override config: %w", err)
		}
		if cfg.Reason == "" {
			return fmt.Errorf("override config: reason is required")
		}
	default:
		return fmt.Errorf("invalid constraint kind %q", c.Kind)
	}
	return nil
}

// HasDerivedEvents reports whether the constraint kind projects derived
// canonical events.
func (c *Constraint) HasDerivedEvents() bool {
	return c.Kind == KindTrip
}

// TripConfig decodes the config payload of a trip constraint.
func (c *Constraint) TripConfig() (*TripConfig, error) {
	if c.Kind != KindTrip {
		return nil, fmt.Errorf("constraint %s is %s, not trip", c.ID, c.Kind)
	}
	var cfg TripConfig
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return nil, fmt.Errorf("trip config: %w", err)
	}
	return &cfg, nil
}
