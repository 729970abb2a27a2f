// Package availability computes busy/free interval lists for a window by
// expanding canonical events, constraints, and milestones through a fixed
// pipeline: raw events, working-hours mask, trips, no-meetings-after,
// buffers, milestones, merge, complement.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamXX/tminus-sub002/internal/interval"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// Tags label the non-event busy intervals each stage emits.
const (
	TagWorkingHours    = "working_hours"
	TagTrip            = "trip"
	TagNoMeetingsAfter = "no_meetings_after"
	TagBuffer          = "buffer"
	TagMilestones      = "milestones"
)

// Request is one availability query.
type Request struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AccountIDs []string  `json:"account_ids,omitempty"`
}

// Result carries the merged busy list and its complement.
type Result struct {
	BusyIntervals []interval.Interval `json:"busy_intervals"`
	FreeIntervals []interval.Interval `json:"free_intervals"`
}

// Engine fetches the actor's rows and runs the pipeline.
type Engine struct {
	store storage.Ops
}

// New creates an availability engine over an actor store.
func New(store storage.Ops) *Engine {
	return &Engine{store: store}
}

// Compute runs the full pipeline for the requested window.
func (e *Engine) Compute(ctx context.Context, req Request) (*Result, error) {
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("window start %s must be before end %s",
			req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
	}

	events, err := e.store.ListEventsOverlapping(ctx, req.Start, req.End, req.AccountIDs)
	if err != nil {
		return nil, err
	}
	constraints, err := e.store.ListConstraints(ctx, "")
	if err != nil {
		return nil, err
	}
	milestones, err := e.store.ListAllMilestones(ctx)
	if err != nil {
		return nil, err
	}
	return Compute(req, events, constraints, milestones)
}

// Compute is the pure pipeline over already-fetched inputs.
func Compute(req Request, events []*types.CanonicalEvent, constraints []*types.Constraint, milestones []*types.Milestone) (*Result, error) {
	var busy []interval.Interval

	// Stage 1: raw events, tagged with origin account.
	raw := make([]interval.Interval, 0, len(events))
	for _, ev := range events {
		if ev.Status == types.StatusCancelled || ev.Transparency == types.TransparencyTransparent {
			continue
		}
		iv, ok := interval.Interval{Start: ev.StartTS, End: ev.EndTS, AccountIDs: []string{ev.OriginAccountID}}.Clamp(req.Start, req.End)
		if !ok {
			continue
		}
		raw = append(raw, iv)
	}
	busy = append(busy, raw...)

	// Stages 2-4: constraint masks, in pipeline order.
	for _, c := range constraints {
		switch c.Kind {
		case types.KindWorkingHours:
			ivs, err := ExpandWorkingHours(c, req.Start, req.End)
			if err != nil {
				return nil, err
			}
			busy = append(busy, ivs...)
		}
	}
	for _, c := range constraints {
		if c.Kind == types.KindTrip {
			if iv, ok := ExpandTrip(c, req.Start, req.End); ok {
				busy = append(busy, iv)
			}
		}
	}
	for _, c := range constraints {
		if c.Kind == types.KindNoMeetingsAfter {
			ivs, err := ExpandNoMeetingsAfter(c, req.Start, req.End)
			if err != nil {
				return nil, err
			}
			busy = append(busy, ivs...)
		}
	}

	// Stage 5: buffers around raw events.
	for _, c := range constraints {
		if c.Kind == types.KindBuffer {
			ivs, err := ExpandBuffers(c, events, req.Start, req.End)
			if err != nil {
				return nil, err
			}
			busy = append(busy, ivs...)
		}
	}

	// Stage 6: milestone days.
	busy = append(busy, ExpandMilestones(milestones, req.Start, req.End)...)

	// Stages 7-8: merge, then complement.
	merged := interval.Merge(busy)
	free := interval.Complement(req.Start, req.End, merged)
	return &Result{BusyIntervals: merged, FreeIntervals: free}, nil
}

// ExpandWorkingHours emits the busy complement of the configured working
// hours for every local day touching the window. Days outside the configured
// weekday set are fully busy. DST shifts follow the IANA zone.
func ExpandWorkingHours(c *types.Constraint, start, end time.Time) ([]interval.Interval, error) {
	var cfg types.WorkingHoursConfig
	if err := decodeConfig(c, &cfg); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("working_hours config: invalid timezone %q", cfg.Timezone)
	}
	workdays := make(map[time.Weekday]bool, len(cfg.Days))
	for _, d := range cfg.Days {
		workdays[time.Weekday(d)] = true
	}

	var busy []interval.Interval
	for day := localMidnight(start, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		if !workdays[day.Weekday()] {
			appendClamped(&busy, day, next, start, end, TagWorkingHours)
			continue
		}
		ws := hhmmOn(day, cfg.StartTime)
		we := hhmmOn(day, cfg.EndTime)
		appendClamped(&busy, day, ws, start, end, TagWorkingHours)
		appendClamped(&busy, we, next, start, end, TagWorkingHours)
	}
	return busy, nil
}

// ExpandTrip clamps the trip's active window to the query window.
func ExpandTrip(c *types.Constraint, start, end time.Time) (interval.Interval, bool) {
	if c.ActiveFrom == nil || c.ActiveTo == nil {
		return interval.Interval{}, false
	}
	iv := interval.Interval{Start: *c.ActiveFrom, End: *c.ActiveTo, AccountIDs: []string{TagTrip}}
	iv, ok := iv.Clamp(start, end)
	if !ok || iv.IsZeroLength() {
		return interval.Interval{}, false
	}
	return iv, true
}

// ExpandNoMeetingsAfter blocks, for each local day in the window, the span
// from the cutoff time to the following midnight.
func ExpandNoMeetingsAfter(c *types.Constraint, start, end time.Time) ([]interval.Interval, error) {
	var cfg types.NoMeetingsAfterConfig
	if err := decodeConfig(c, &cfg); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("no_meetings_after config: invalid timezone %q", cfg.Timezone)
	}

	var busy []interval.Interval
	for day := localMidnight(start, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		cutoff := hhmmOn(day, cfg.Time)
		appendClamped(&busy, cutoff, day.AddDate(0, 0, 1), start, end, TagNoMeetingsAfter)
	}
	return busy, nil
}

// ExpandBuffers pads matching events: travel and prep expand before the
// event, cooldown after. applies_to=external skips derived events from the
// internal account.
func ExpandBuffers(c *types.Constraint, events []*types.CanonicalEvent, start, end time.Time) ([]interval.Interval, error) {
	var cfg types.BufferConfig
	if err := decodeConfig(c, &cfg); err != nil {
		return nil, err
	}
	pad := time.Duration(cfg.Minutes) * time.Minute

	var busy []interval.Interval
	for _, ev := range events {
		if ev.Status == types.StatusCancelled {
			continue
		}
		if cfg.AppliesTo == "external" && ev.OriginAccountID == types.InternalAccountID {
			continue
		}
		switch cfg.Type {
		case types.BufferTravel, types.BufferPrep:
			appendClamped(&busy, ev.StartTS.Add(-pad), ev.StartTS, start, end, TagBuffer)
		case types.BufferCooldown:
			appendClamped(&busy, ev.EndTS, ev.EndTS.Add(pad), start, end, TagBuffer)
		}
	}
	return busy, nil
}

// ExpandMilestones blocks the whole UTC day of every milestone date in the
// window, expanding annually recurring dates to each year the window spans.
func ExpandMilestones(milestones []*types.Milestone, start, end time.Time) []interval.Interval {
	var busy []interval.Interval
	for _, m := range milestones {
		date, err := time.Parse("2006-01-02", m.Date)
		if err != nil {
			continue
		}
		if !m.RecursAnnually {
			appendClamped(&busy, date, date.AddDate(0, 0, 1), start, end, TagMilestones)
			continue
		}
		for year := start.Year(); year <= end.Year(); year++ {
			day := time.Date(year, date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			appendClamped(&busy, day, day.AddDate(0, 0, 1), start, end, TagMilestones)
		}
	}
	return busy
}

func decodeConfig(c *types.Constraint, out any) error {
	if err := c.ValidateConfig(); err != nil {
		return err
	}
	return json.Unmarshal(c.Config, out)
}

// localMidnight returns 00:00 in loc for the day containing t.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// hhmmOn places an HH:MM clock time on the given local day.
func hhmmOn(day time.Time, hhmm string) time.Time {
	var h, m int
	fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func appendClamped(busy *[]interval.Interval, ivStart, ivEnd time.Time, winStart, winEnd time.Time, tag string) {
	iv, ok := interval.Interval{Start: ivStart, End: ivEnd, AccountIDs: []string{tag}}.Clamp(winStart, winEnd)
	if !ok || iv.IsZeroLength() {
		return
	}
	*busy = append(*busy, iv)
}
