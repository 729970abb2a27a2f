package types

import (
	"fmt"
	"time"
)

// DeltaType classifies an inbound provider delta.
type DeltaType string

const (
	DeltaCreated   DeltaType = "created"
	DeltaUpdated   DeltaType = "updated"
	DeltaDeleted   DeltaType = "deleted"
	DeltaCancelled DeltaType = "cancelled"
)

// EventFields carries the tracked fields of a provider delta. Pointers
// distinguish "absent" from zero values; only present, non-nil fields
// participate in authority marker updates.
type EventFields struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Location       *string    `json:"location,omitempty"`
	StartTS        *time.Time `json:"start_ts,omitempty"`
	EndTS          *time.Time `json:"end_ts,omitempty"`
	Timezone       *string    `json:"timezone,omitempty"`
	Status         *string    `json:"status,omitempty"`
	Visibility     *string    `json:"visibility,omitempty"`
	Transparency   *string    `json:"transparency,omitempty"`
	AllDay         *bool      `json:"all_day,omitempty"`
	RecurrenceRule *string    `json:"recurrence_rule,omitempty"`
}

// Present returns the value of a tracked field by name, and whether the
// delta carries it. Unknown names return (nil, false).
func (f *EventFields) Present(name string) (any, bool) {
	switch name {
	case "title":
		if f.Title != nil {
			return *f.Title, true
		}
	case "description":
		if f.Description != nil {
			return *f.Description, true
		}
	case "location":
		if f.Location != nil {
			return *f.Location, true
		}
	case "start_ts":
		if f.StartTS != nil {
			return f.StartTS.UTC().Format(time.RFC3339), true
		}
	case "end_ts":
		if f.EndTS != nil {
			return f.EndTS.UTC().Format(time.RFC3339), true
		}
	case "timezone":
		if f.Timezone != nil {
			return *f.Timezone, true
		}
	case "status":
		if f.Status != nil {
			return *f.Status, true
		}
	case "visibility":
		if f.Visibility != nil {
			return *f.Visibility, true
		}
	case "transparency":
		if f.Transparency != nil {
			return *f.Transparency, true
		}
	case "all_day":
		if f.AllDay != nil {
			return *f.AllDay, true
		}
	case "recurrence_rule":
		if f.RecurrenceRule != nil {
			return *f.RecurrenceRule, true
		}
	}
	return nil, false
}

// FieldValue returns the current value of a tracked field on a canonical
// event, and whether it is non-null (empty strings count as null for
// marker purposes; booleans are always non-null once the event exists).
func FieldValue(e *CanonicalEvent, name string) (any, bool) {
	switch name {
	case "title":
		return e.Title, e.Title != ""
	case "description":
		return e.Description, e.Description != ""
	case "location":
		return e.Location, e.Location != ""
	case "start_ts":
		return e.StartTS.UTC().Format(time.RFC3339), !e.StartTS.IsZero()
	case "end_ts":
		return e.EndTS.UTC().Format(time.RFC3339), !e.EndTS.IsZero()
	case "timezone":
		return e.Timezone, e.Timezone != ""
	case "status":
		return string(e.Status), e.Status != ""
	case "visibility":
		return e.Visibility, e.Visibility != ""
	case "transparency":
		return string(e.Transparency), e.Transparency != ""
	case "all_day":
		return e.AllDay, true
	case "recurrence_rule":
		return e.RecurrenceRule, e.RecurrenceRule != ""
	}
	return nil, false
}

// ApplyTo writes every present field of the delta onto the event.
func (f *EventFields) ApplyTo(e *CanonicalEvent) {
	if f.Title != nil {
		e.Title = *f.Title
	}
	if f.Description != nil {
		e.Description = *f.Description
	}
	if f.Location != nil {
		e.Location = *f.Location
	}
	if f.StartTS != nil {
		e.StartTS = f.StartTS.UTC()
	}
	if f.EndTS != nil {
		e.EndTS = f.EndTS.UTC()
	}
	if f.Timezone != nil {
		e.Timezone = *f.Timezone
	}
	if f.Status != nil {
		e.Status = EventStatus(*f.Status)
	}
	if f.Visibility != nil {
		e.Visibility = *f.Visibility
	}
	if f.Transparency != nil {
		e.Transparency = Transparency(*f.Transparency)
	}
	if f.AllDay != nil {
		e.AllDay = *f.AllDay
	}
	if f.RecurrenceRule != nil {
		e.RecurrenceRule = *f.RecurrenceRule
	}
}

// ProviderDelta is one inbound change from an external calendar provider.
type ProviderDelta struct {
	Type              DeltaType   `json:"type"`
	AccountID         string      `json:"account_id"`
	OriginEventID     string      `json:"origin_event_id"`
	Source            EventSource `json:"source,omitempty"` // defaults to provider
	Fields            EventFields `json:"fields"`
	ParticipantHashes []string    `json:"participant_hashes,omitempty"`
}

// Validate checks the delta envelope before it reaches the store.
func (d *ProviderDelta) Validate() error {
	switch d.Type {
	case DeltaCreated, DeltaUpdated, DeltaDeleted, DeltaCancelled:
	default:
		return fmt.Errorf("invalid delta type %q", d.Type)
	}
	if d.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if d.OriginEventID == "" {
		return fmt.Errorf("origin_event_id is required")
	}
	if d.Fields.StartTS != nil && d.Fields.EndTS != nil && d.Fields.StartTS.After(*d.Fields.EndTS) {
		return fmt.Errorf("start_ts is after end_ts")
	}
	return nil
}
