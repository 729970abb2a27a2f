// Package reputation derives scores and reports from the interaction
// ledger: decay-weighted reliability, reciprocity asymmetry, drift urgency,
// and reconnection suggestions.
package reputation

import (
	"math"
	"time"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// decayHalfLife controls how fast old ledger entries fade: an entry 30 days
// old counts half as much as one from today.
const decayHalfLife = 30 * 24 * time.Hour

// neutralScore is returned for an empty ledger.
const neutralScore = 0.5

// Scores is the reputation pair for one relationship.
type Scores struct {
	ReliabilityScore float64 `json:"reliability_score"`
	ReciprocityScore float64 `json:"reciprocity_score"`
	SampleSize       int     `json:"sample_size"`
}

// Compute derives both scores from a relationship's ledger.
func Compute(entries []*types.LedgerEntry, now time.Time) Scores {
	return Scores{
		ReliabilityScore: Reliability(entries, now),
		ReciprocityScore: Reciprocity(entries),
		SampleSize:       len(entries),
	}
}

// Reliability maps the exponentially decayed weighted average of outcome
// weights from [-1, 1] onto [0, 1]. Recent entries weigh more; an all-ATTENDED
// ledger approaches 1, an all-NO_SHOW_THEM ledger approaches 0.
func Reliability(entries []*types.LedgerEntry, now time.Time) float64 {
	if len(entries) == 0 {
		return neutralScore
	}
	var weighted, total float64
	for _, e := range entries {
		age := now.Sub(e.TS)
		if age < 0 {
			age = 0
		}
		decay := math.Exp2(-age.Hours() / decayHalfLife.Hours())
		weighted += e.Weight * decay
		total += decay
	}
	if total == 0 {
		return neutralScore
	}
	return clamp01((weighted/total + 1) / 2)
}

// Reciprocity measures who carries the flaking: 0.5 means balance, values
// toward 0 mean the contact cancels and no-shows more than the user does.
func Reciprocity(entries []*types.LedgerEntry) float64 {
	var themNeg, meNeg float64
	for _, e := range entries {
		switch e.Outcome {
		case types.OutcomeCanceledByThem, types.OutcomeNoShowThem, types.OutcomeMovedLastMinThem:
			themNeg++
		case types.OutcomeCanceledByMe, types.OutcomeNoShowMe, types.OutcomeMovedLastMinMe:
			meNeg++
		}
	}
	if themNeg+meNeg == 0 {
		return neutralScore
	}
	return clamp01(meNeg / (themNeg + meNeg))
}

// RiskScore is the expected-attendance risk for upcoming meetings with one
// relationship: the reliability deficit, so a perfectly reliable contact
// scores 0 and a chronic no-show approaches 1.
func RiskScore(entries []*types.LedgerEntry, now time.Time) float64 {
	return clamp01(1 - Reliability(entries, now))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
