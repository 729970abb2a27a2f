package reputation

import (
	"sort"
	"time"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// neverInteractedDays stands in for "days since last interaction" when a
// relationship has no recorded interaction at all, so such contacts swamp
// any weight ratio in the ordering.
const neverInteractedDays = 3650

// DriftEntry is one row of a drift report.
type DriftEntry struct {
	ParticipantHash string                     `json:"participant_hash"`
	DisplayName     string                     `json:"display_name,omitempty"`
	Category        types.RelationshipCategory `json:"category"`
	DaysOverdue     int                        `json:"days_overdue"`
	DriftRatio      float64                    `json:"drift_ratio"`
	Urgency         float64                    `json:"urgency"`
}

// DriftReport returns every relationship with a frequency target that is
// overdue, most urgent first.
func DriftReport(relationships []*types.Relationship, now time.Time) []DriftEntry {
	var report []DriftEntry
	for _, r := range relationships {
		if r.InteractionFrequencyTarget <= 0 {
			continue
		}
		daysSince := neverInteractedDays
		if r.LastInteractionTS != nil {
			daysSince = int(now.Sub(*r.LastInteractionTS).Hours() / 24)
		}
		overdue := daysSince - r.InteractionFrequencyTarget
		if overdue <= 0 {
			continue
		}
		report = append(report, DriftEntry{
			ParticipantHash: r.ParticipantHash,
			DisplayName:     r.DisplayName,
			Category:        r.Category,
			DaysOverdue:     overdue,
			DriftRatio:      float64(daysSince) / float64(r.InteractionFrequencyTarget),
			Urgency:         float64(overdue) * r.ClosenessWeight,
		})
	}
	sort.SliceStable(report, func(i, j int) bool {
		return report[i].Urgency > report[j].Urgency
	})
	return report
}

// DriftAlerts converts a report into the replaceable snapshot rows.
func DriftAlerts(report []DriftEntry, computedAt time.Time) []types.DriftAlert {
	alerts := make([]types.DriftAlert, 0, len(report))
	for _, e := range report {
		alerts = append(alerts, types.DriftAlert{
			ParticipantHash: e.ParticipantHash,
			DisplayName:     e.DisplayName,
			Category:        e.Category,
			Urgency:         e.Urgency,
			DriftRatio:      e.DriftRatio,
			DaysOverdue:     e.DaysOverdue,
			ComputedAt:      computedAt,
		})
	}
	return alerts
}
