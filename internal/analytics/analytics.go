// Package analytics derives reporting views from the availability pipeline
// and the raw event stream: deep-work blocks, context switches, cognitive
// load, per-relationship risk, and probabilistic availability.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/RamXX/tminus-sub002/internal/interval"
	"github.com/RamXX/tminus-sub002/internal/reputation"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// DefaultMinBlockMinutes is the smallest gap counted as deep work.
const DefaultMinBlockMinutes = 120

// shortMeeting is the threshold under which a meeting counts as
// fragmenting for the deep-work suggestions.
const shortMeeting = 30 * time.Minute

// DeepWorkBlock is one uninterrupted free span inside working hours.
type DeepWorkBlock struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Minutes int       `json:"minutes"`
}

// DeepWorkSuggestion proposes a consolidation with its estimated payoff.
type DeepWorkSuggestion struct {
	Text                 string `json:"text"`
	EstimatedGainMinutes int    `json:"estimated_gain_minutes"`
}

// DeepWorkReport is the deep-work view for one window.
type DeepWorkReport struct {
	Blocks         []DeepWorkBlock      `json:"blocks"`
	TotalDeepHours float64              `json:"total_deep_hours"`
	Suggestions    []DeepWorkSuggestion `json:"suggestions,omitempty"`
}

// DeepWork enumerates free intervals of at least minBlockMinutes and, when
// the window is fragmented by short meetings, emits consolidation
// suggestions.
func DeepWork(free []interval.Interval, events []*types.CanonicalEvent, minBlockMinutes int) *DeepWorkReport {
	if minBlockMinutes <= 0 {
		minBlockMinutes = DefaultMinBlockMinutes
	}
	report := &DeepWorkReport{}
	for _, iv := range free {
		minutes := int(iv.End.Sub(iv.Start).Minutes())
		if minutes < minBlockMinutes {
			continue
		}
		report.Blocks = append(report.Blocks, DeepWorkBlock{Start: iv.Start, End: iv.End, Minutes: minutes})
		report.TotalDeepHours += float64(minutes) / 60
	}

	short := 0
	var shortTotal time.Duration
	for _, ev := range events {
		if ev.Status == types.StatusCancelled {
			continue
		}
		if d := ev.EndTS.Sub(ev.StartTS); d > 0 && d <= shortMeeting {
			short++
			shortTotal += d
		}
	}
	if short >= 3 {
		gain := int(shortTotal.Minutes()) / 2
		report.Suggestions = append(report.Suggestions, DeepWorkSuggestion{
			Text:                 fmt.Sprintf("Batch your %d short meetings back-to-back to reclaim a focus block", short),
			EstimatedGainMinutes: gain,
		})
		if len(report.Blocks) == 0 {
			report.Suggestions = append(report.Suggestions, DeepWorkSuggestion{
				Text:                 "No deep-work block survives this schedule; consider declaring a no-meeting morning",
				EstimatedGainMinutes: minBlockMinutes,
			})
		}
	}
	return report
}

// Transition is one category change between consecutive meetings.
type Transition struct {
	Day          string    `json:"day"` // YYYY-MM-DD
	At           time.Time `json:"at"`
	FromTitle    string    `json:"from_title"`
	ToTitle      string    `json:"to_title"`
	FromCategory Category  `json:"from_category"`
	ToCategory   Category  `json:"to_category"`
	Cost         float64   `json:"cost"`
}

// ContextSwitchReport sums transition costs per day.
type ContextSwitchReport struct {
	Transitions []Transition       `json:"transitions"`
	DayCosts    map[string]float64 `json:"day_costs"`
	TotalCost   float64            `json:"total_cost"`
	Suggestions []string           `json:"suggestions,omitempty"`
}

// ContextSwitches walks the events of each day in order and prices every
// category change.
func ContextSwitches(events []*types.CanonicalEvent) *ContextSwitchReport {
	report := &ContextSwitchReport{DayCosts: map[string]float64{}}

	byDay := map[string][]*types.CanonicalEvent{}
	for _, ev := range events {
		if ev.Status == types.StatusCancelled {
			continue
		}
		day := ev.StartTS.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], ev)
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		evs := byDay[day]
		sort.Slice(evs, func(i, j int) bool { return evs[i].StartTS.Before(evs[j].StartTS) })
		for i := 1; i < len(evs); i++ {
			from, to := evs[i-1], evs[i]
			fromCat, toCat := Categorize(from.Title), Categorize(to.Title)
			cost := switchCost(fromCat, toCat)
			report.Transitions = append(report.Transitions, Transition{
				Day:          day,
				At:           to.StartTS,
				FromTitle:    from.Title,
				ToTitle:      to.Title,
				FromCategory: fromCat,
				ToCategory:   toCat,
				Cost:         cost,
			})
			report.DayCosts[day] += cost
			report.TotalCost += cost
		}
		if report.DayCosts[day] >= 2.0 {
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("Cluster same-category meetings on %s to cut switching cost", day))
		}
	}
	return report
}

// CognitiveLoad is a day-level scalar from event density and category mix.
type CognitiveLoad struct {
	Day           string  `json:"day"`
	MeetingCount  int     `json:"meeting_count"`
	MeetingHours  float64 `json:"meeting_hours"`
	CategoryCount int     `json:"category_count"`
	SwitchCost    float64 `json:"switch_cost"`
	Load          float64 `json:"load"`
}

// CognitiveLoadReport aggregates per-day loads over a window.
type CognitiveLoadReport struct {
	Days        []CognitiveLoad `json:"days"`
	AverageLoad float64         `json:"average_load"`
	PeakDay     string          `json:"peak_day,omitempty"`
}

// ComputeCognitiveLoad scores each day: meeting hours plus a density term
// plus the day's switching cost, weighted by category spread.
func ComputeCognitiveLoad(events []*types.CanonicalEvent) *CognitiveLoadReport {
	switches := ContextSwitches(events)

	type dayAgg struct {
		count      int
		hours      float64
		categories map[Category]struct{}
	}
	byDay := map[string]*dayAgg{}
	for _, ev := range events {
		if ev.Status == types.StatusCancelled {
			continue
		}
		day := ev.StartTS.UTC().Format("2006-01-02")
		agg := byDay[day]
		if agg == nil {
			agg = &dayAgg{categories: map[Category]struct{}{}}
			byDay[day] = agg
		}
		agg.count++
		agg.hours += ev.EndTS.Sub(ev.StartTS).Hours()
		agg.categories[Categorize(ev.Title)] = struct{}{}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	report := &CognitiveLoadReport{}
	var total, peak float64
	for _, day := range days {
		agg := byDay[day]
		load := agg.hours + 0.5*float64(agg.count) + switches.DayCosts[day]*float64(len(agg.categories))
		cl := CognitiveLoad{
			Day:           day,
			MeetingCount:  agg.count,
			MeetingHours:  agg.hours,
			CategoryCount: len(agg.categories),
			SwitchCost:    switches.DayCosts[day],
			Load:          load,
		}
		report.Days = append(report.Days, cl)
		total += load
		if load > peak {
			peak = load
			report.PeakDay = day
		}
	}
	if len(report.Days) > 0 {
		report.AverageLoad = total / float64(len(report.Days))
	}
	return report
}

// RiskScore is the expected-attendance risk for one relationship.
type RiskScore struct {
	ParticipantHash string  `json:"participant_hash"`
	DisplayName     string  `json:"display_name,omitempty"`
	Risk            float64 `json:"risk"`
	SampleSize      int     `json:"sample_size"`
}

// RiskScores ranks relationships by no-show risk, highest first.
func RiskScores(relationships []*types.Relationship, ledgers map[string][]*types.LedgerEntry, now time.Time) []RiskScore {
	scores := make([]RiskScore, 0, len(relationships))
	for _, r := range relationships {
		entries := ledgers[r.ParticipantHash]
		scores = append(scores, RiskScore{
			ParticipantHash: r.ParticipantHash,
			DisplayName:     r.DisplayName,
			Risk:            reputation.RiskScore(entries, now),
			SampleSize:      len(entries),
		})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Risk > scores[j].Risk })
	return scores
}

// SlotProbability is the probability one slot is actually free.
type SlotProbability struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Probability float64   `json:"probability"`
}

// ProbabilisticAvailability splits the window into slots and combines hard
// busy intervals with soft signals: a confirmed busy slot has probability 0,
// a tentative event discounts by the organizer's reliability, free slots
// are 1.
func ProbabilisticAvailability(start, end time.Time, slot time.Duration, events []*types.CanonicalEvent, reliability map[string]float64) []SlotProbability {
	if slot <= 0 {
		slot = 30 * time.Minute
	}
	var out []SlotProbability
	for cur := start; cur.Before(end); cur = cur.Add(slot) {
		slotEnd := cur.Add(slot)
		if slotEnd.After(end) {
			slotEnd = end
		}
		p := 1.0
		for _, ev := range events {
			if ev.Status == types.StatusCancelled || !overlaps(ev, cur, slotEnd) {
				continue
			}
			if ev.Status == types.StatusTentative {
				// A tentative hold frees up when the other side flakes:
				// occupancy probability equals their reliability.
				rel, ok := attendeeReliability(ev, reliability)
				if !ok {
					rel = 0.5
				}
				p *= 1 - rel
				continue
			}
			p = 0
		}
		out = append(out, SlotProbability{Start: cur, End: slotEnd, Probability: p})
	}
	return out
}

func overlaps(ev *types.CanonicalEvent, start, end time.Time) bool {
	return ev.StartTS.Before(end) && ev.EndTS.After(start)
}

func attendeeReliability(ev *types.CanonicalEvent, reliability map[string]float64) (float64, bool) {
	best, found := 0.0, false
	for _, hash := range ev.ParticipantHashes {
		if rel, ok := reliability[hash]; ok {
			if !found || rel > best {
				best, found = rel, true
			}
		}
	}
	return best, found
}
