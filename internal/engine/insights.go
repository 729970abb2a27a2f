package engine

import (
	"context"
	"time"

	"github.com/RamXX/tminus-sub002/internal/analytics"
	"github.com/RamXX/tminus-sub002/internal/availability"
	"github.com/RamXX/tminus-sub002/internal/reputation"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// ComputeAvailability runs the busy/free pipeline over the window.
func (e *Engine) ComputeAvailability(ctx context.Context, req availability.Request) (*availability.Result, error) {
	return availability.New(e.store).Compute(ctx, req)
}

// DeepWork mines the window's free time for focus blocks and fragmentation
// suggestions.
func (e *Engine) DeepWork(ctx context.Context, start, end time.Time, minBlockMinutes int) (*analytics.DeepWorkReport, error) {
	avail, err := e.ComputeAvailability(ctx, availability.Request{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	events, err := e.store.ListEventsOverlapping(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}
	return analytics.DeepWork(avail.FreeIntervals, events, minBlockMinutes), nil
}

// ContextSwitches prices the category changes of the window's meetings.
func (e *Engine) ContextSwitches(ctx context.Context, start, end time.Time) (*analytics.ContextSwitchReport, error) {
	events, err := e.store.ListEventsOverlapping(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}
	return analytics.ContextSwitches(events), nil
}

// CognitiveLoad scores each day of the window.
func (e *Engine) CognitiveLoad(ctx context.Context, start, end time.Time) (*analytics.CognitiveLoadReport, error) {
	events, err := e.store.ListEventsOverlapping(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeCognitiveLoad(events), nil
}

// RiskScores ranks every relationship by no-show risk.
func (e *Engine) RiskScores(ctx context.Context) ([]analytics.RiskScore, error) {
	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	ledgers := make(map[string][]*types.LedgerEntry, len(rels))
	for _, r := range rels {
		entries, err := e.store.ListLedgerEntries(ctx, r.ParticipantHash)
		if err != nil {
			return nil, err
		}
		ledgers[r.ParticipantHash] = entries
	}
	return analytics.RiskScores(rels, ledgers, e.now()), nil
}

// ProbabilisticAvailability estimates per-slot free probability, discounting
// tentative holds by attendee reliability.
func (e *Engine) ProbabilisticAvailability(ctx context.Context, start, end time.Time, slot time.Duration) ([]analytics.SlotProbability, error) {
	events, err := e.store.ListEventsOverlapping(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}
	now := e.now()
	reliability := make(map[string]float64)
	for _, ev := range events {
		for _, hash := range ev.ParticipantHashes {
			if _, seen := reliability[hash]; seen {
				continue
			}
			entries, err := e.store.ListLedgerEntries(ctx, hash)
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				reliability[hash] = reputation.Reliability(entries, now)
			}
		}
	}
	return analytics.ProbabilisticAvailability(start, end, slot, events, reliability), nil
}
