// Package interval implements the interval algebra underneath the
// availability engine: merge (union), complement (difference against a
// bounding window), and clamping. All functions are pure and deterministic
// over plain value types.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time span [Start, End) tagged with the accounts
// (or constraint tags) that produced it.
type Interval struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AccountIDs []string  `json:"account_ids"`
}

// IsZeroLength reports whether the interval spans no time. Zero-length
// intervals can appear from DST and format-normalization boundaries; the
// algebra tolerates them.
func (iv Interval) IsZeroLength() bool {
	return !iv.Start.Before(iv.End)
}

// Clamp restricts the interval to [start, end]. The second return is false
// when nothing remains.
func (iv Interval) Clamp(start, end time.Time) (Interval, bool) {
	if iv.Start.Before(start) {
		iv.Start = start
	}
	if iv.End.After(end) {
		iv.End = end
	}
	if iv.Start.After(iv.End) {
		return Interval{}, false
	}
	return iv, true
}

// Merge unions a set of intervals: sorted by start, overlapping or touching
// intervals coalesce, and the coalesced interval's account set is the union
// of its inputs'. Merging an already-merged list returns an equal list.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Interval, 0, len(sorted))
	cur := Interval{
		Start:      sorted[0].Start,
		End:        sorted[0].End,
		AccountIDs: unionAccounts(nil, sorted[0].AccountIDs),
	}
	for _, iv := range sorted[1:] {
		// [a,b] and [b,c] touch at b and merge into [a,c].
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			cur.AccountIDs = unionAccounts(cur.AccountIDs, iv.AccountIDs)
			continue
		}
		merged = append(merged, cur)
		cur = Interval{
			Start:      iv.Start,
			End:        iv.End,
			AccountIDs: unionAccounts(nil, iv.AccountIDs),
		}
	}
	return append(merged, cur)
}

// Complement returns [start, end] minus the given busy intervals. Busy
// inputs must already be merged (sorted, disjoint); Merge produces that
// form. Slivers shorter than a minute are dropped: they are artifacts of
// pure format differences, not real free time.
func Complement(start, end time.Time, busy []Interval) []Interval {
	const sliver = time.Minute

	var free []Interval
	cursor := start
	for _, iv := range busy {
		if !iv.End.After(cursor) || !iv.Start.Before(end) {
			continue
		}
		if iv.Start.After(cursor) {
			gap := Interval{Start: cursor, End: minTime(iv.Start, end)}
			if gap.End.Sub(gap.Start) >= sliver {
				free = append(free, gap)
			}
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
		if !cursor.Before(end) {
			return free
		}
	}
	if end.Sub(cursor) >= sliver {
		free = append(free, Interval{Start: cursor, End: end})
	}
	return free
}

// unionAccounts merges two account-id sets, keeping sorted order for
// deterministic output.
func unionAccounts(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
