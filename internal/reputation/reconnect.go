package reputation

import (
	_ "embed"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RamXX/tminus-sub002/internal/types"
)

//go:embed geo_aliases.yaml
var geoAliasesYAML []byte

// cityAliases maps well-known alternate names to a canonical form, applied
// to both sides of a comparison. Unknown cities fall back to an exact
// case-insensitive match.
var cityAliases = mustLoadAliases()

func mustLoadAliases() map[string]string {
	aliases := make(map[string]string)
	if err := yaml.Unmarshal(geoAliasesYAML, &aliases); err != nil {
		panic("reputation: bad geo_aliases.yaml: " + err.Error())
	}
	return aliases
}

func canonicalCity(city string) string {
	c := strings.ToLower(strings.TrimSpace(city))
	if alias, ok := cityAliases[c]; ok {
		return alias
	}
	return c
}

// CityMatches reports whether two city strings name the same place.
func CityMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return canonicalCity(a) == canonicalCity(b)
}

// suggestedDurations is the per-category default meeting length in minutes.
var suggestedDurations = map[types.RelationshipCategory]int{
	types.CategoryFamily:    90,
	types.CategoryFriend:    60,
	types.CategoryColleague: 45,
	types.CategoryClient:    45,
	types.CategoryInvestor:  30,
	types.CategoryBoard:     30,
	types.CategoryOther:     30,
}

// TimeWindow is a concrete [start, end] span.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimezoneWindow describes the daily UTC overlap of two working days.
type TimezoneWindow struct {
	UserTimezone    string `json:"user_timezone"`
	ContactTimezone string `json:"contact_timezone"`
	OverlapStartUTC string `json:"overlap_start_utc,omitempty"` // HH:MM
	OverlapEndUTC   string `json:"overlap_end_utc,omitempty"`   // HH:MM
}

// Suggestion is one reconnection recommendation: an overdue relationship in
// the queried city. It is a report only; nothing is scheduled or sent.
type Suggestion struct {
	ParticipantHash          string                     `json:"participant_hash"`
	DisplayName              string                     `json:"display_name,omitempty"`
	Category                 types.RelationshipCategory `json:"category"`
	City                     string                     `json:"city"`
	DaysOverdue              int                        `json:"days_overdue"`
	SuggestedDurationMinutes int                        `json:"suggested_duration_minutes"`
	SuggestedTimeWindow      *TimeWindow                `json:"suggested_time_window,omitempty"`
	TimezoneMeetingWindow    *TimezoneWindow            `json:"timezone_meeting_window,omitempty"`
}

// Reconnect returns reconnection suggestions for overdue relationships in
// city. tripWindow, when the city came from a trip constraint, bounds the
// suggested time window; userTZ feeds the timezone overlap.
func Reconnect(relationships []*types.Relationship, city string, tripWindow *TimeWindow, userTZ string, now time.Time) []Suggestion {
	overdue := make(map[string]int)
	for _, e := range DriftReport(relationships, now) {
		overdue[e.ParticipantHash] = e.DaysOverdue
	}

	var suggestions []Suggestion
	for _, r := range relationships {
		days, isOverdue := overdue[r.ParticipantHash]
		if !isOverdue || !CityMatches(r.City, city) {
			continue
		}
		s := Suggestion{
			ParticipantHash:          r.ParticipantHash,
			DisplayName:              r.DisplayName,
			Category:                 r.Category,
			City:                     r.City,
			DaysOverdue:              days,
			SuggestedDurationMinutes: suggestedDurations[r.Category],
			SuggestedTimeWindow:      tripWindow,
		}
		if userTZ != "" && r.Timezone != "" {
			s.TimezoneMeetingWindow = overlapWindow(userTZ, r.Timezone, now)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions
}

// overlapWindow intersects both parties' 09:00-17:00 working day, expressed
// in UTC clock time for today's offsets.
func overlapWindow(userTZ, contactTZ string, now time.Time) *TimezoneWindow {
	userLoc, err := time.LoadLocation(userTZ)
	if err != nil {
		return nil
	}
	contactLoc, err := time.LoadLocation(contactTZ)
	if err != nil {
		return nil
	}
	w := &TimezoneWindow{UserTimezone: userTZ, ContactTimezone: contactTZ}

	userStart, userEnd := workingDayUTC(now, userLoc)
	contactStart, contactEnd := workingDayUTC(now, contactLoc)
	start := maxTime(userStart, contactStart)
	end := minTime(userEnd, contactEnd)
	if !start.Before(end) {
		return w // no overlap today
	}
	w.OverlapStartUTC = start.UTC().Format("15:04")
	w.OverlapEndUTC = end.UTC().Format("15:04")
	return w
}

func workingDayUTC(now time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := now.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 9, 0, 0, 0, loc)
	end := time.Date(lt.Year(), lt.Month(), lt.Day(), 17, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
