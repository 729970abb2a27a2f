package engine

import (
	"context"
	"time"

	"github.com/RamXX/tminus-sub002/internal/reputation"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// CreateRelationship persists a new contact edge.
func (e *Engine) CreateRelationship(ctx context.Context, r *types.Relationship) error {
	return e.store.InsertRelationship(ctx, r)
}

// GetRelationship reads one relationship by id.
func (e *Engine) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	return e.store.GetRelationship(ctx, id)
}

// UpdateRelationship rewrites a relationship row.
func (e *Engine) UpdateRelationship(ctx context.Context, r *types.Relationship) error {
	return e.store.UpdateRelationship(ctx, r)
}

// DeleteRelationship removes a relationship; its ledger, milestones, and
// drift alerts cascade.
func (e *Engine) DeleteRelationship(ctx context.Context, id string) error {
	return e.store.DeleteRelationship(ctx, id)
}

// ListRelationships lists every relationship.
func (e *Engine) ListRelationships(ctx context.Context) ([]*types.Relationship, error) {
	return e.store.ListRelationships(ctx)
}

// RelationshipWithReputation pairs a relationship with its current scores.
type RelationshipWithReputation struct {
	Relationship *types.Relationship `json:"relationship"`
	Reputation   reputation.Scores   `json:"reputation"`
}

// ListRelationshipsWithReputation lists relationships enriched with
// decay-weighted reliability and reciprocity.
func (e *Engine) ListRelationshipsWithReputation(ctx context.Context) ([]RelationshipWithReputation, error) {
	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]RelationshipWithReputation, 0, len(rels))
	for _, r := range rels {
		entries, err := e.store.ListLedgerEntries(ctx, r.ParticipantHash)
		if err != nil {
			return nil, err
		}
		out = append(out, RelationshipWithReputation{
			Relationship: r,
			Reputation:   reputation.Compute(entries, now),
		})
	}
	return out, nil
}

// UpdateInteractions stamps last_interaction_ts for every matching hash.
func (e *Engine) UpdateInteractions(ctx context.Context, participantHashes []string, ts time.Time) (int, error) {
	return e.store.UpdateLastInteraction(ctx, participantHashes, ts)
}

// MarkOutcome appends one interaction outcome to the ledger. ATTENDED is the
// only outcome that also bumps last_interaction_ts.
func (e *Engine) MarkOutcome(ctx context.Context, entry *types.LedgerEntry) error {
	if entry.TS.IsZero() {
		entry.TS = e.now()
	}
	return e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}
		if entry.Outcome != types.OutcomeAttended {
			return nil
		}
		_, err := tx.UpdateLastInteraction(ctx, []string{entry.ParticipantHash}, entry.TS)
		return err
	})
}

// ListOutcomes returns the ledger for one participant, oldest first.
func (e *Engine) ListOutcomes(ctx context.Context, participantHash string) ([]*types.LedgerEntry, error) {
	return e.store.ListLedgerEntries(ctx, participantHash)
}

// GetReputation computes the current scores for one participant.
func (e *Engine) GetReputation(ctx context.Context, participantHash string) (*reputation.Scores, error) {
	entries, err := e.store.ListLedgerEntries(ctx, participantHash)
	if err != nil {
		return nil, err
	}
	scores := reputation.Compute(entries, e.now())
	return &scores, nil
}

// DriftReport computes the overdue-relationship report, most urgent first.
func (e *Engine) DriftReport(ctx context.Context) ([]reputation.DriftEntry, error) {
	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return reputation.DriftReport(rels, e.now()), nil
}

// StoreDriftAlerts recomputes the drift report and replaces the persisted
// snapshot in one transaction.
func (e *Engine) StoreDriftAlerts(ctx context.Context) (int, error) {
	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return 0, err
	}
	now := e.now()
	alerts := reputation.DriftAlerts(reputation.DriftReport(rels, now), now)
	if err := e.store.ReplaceDriftAlerts(ctx, alerts); err != nil {
		return 0, err
	}
	return len(alerts), nil
}

// GetDriftAlerts returns the persisted snapshot, most urgent first.
func (e *Engine) GetDriftAlerts(ctx context.Context) ([]types.DriftAlert, error) {
	return e.store.ListDriftAlerts(ctx)
}

// ReconnectionSuggestions lists overdue contacts in a city. When
// tripConstraintID names a trip, its destination city and window seed the
// search; an explicit city argument wins over the trip's.
func (e *Engine) ReconnectionSuggestions(ctx context.Context, city, tripConstraintID, userTZ string) ([]reputation.Suggestion, error) {
	var window *reputation.TimeWindow
	if tripConstraintID != "" {
		c, err := e.store.GetConstraint(ctx, tripConstraintID)
		if err != nil {
			return nil, err
		}
		cfg, err := c.TripConfig()
		if err != nil {
			return nil, err
		}
		if city == "" {
			city = cfg.DestinationCity
		}
		if c.ActiveFrom != nil && c.ActiveTo != nil {
			window = &reputation.TimeWindow{Start: *c.ActiveFrom, End: *c.ActiveTo}
		}
	}
	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return reputation.Reconnect(rels, city, window, userTZ, e.now()), nil
}

// CreateMilestone records a personal date for a relationship.
func (e *Engine) CreateMilestone(ctx context.Context, m *types.Milestone) error {
	return e.store.InsertMilestone(ctx, m)
}

// ListMilestones lists milestones for one participant.
func (e *Engine) ListMilestones(ctx context.Context, participantHash string) ([]*types.Milestone, error) {
	return e.store.ListMilestones(ctx, participantHash)
}

// DeleteMilestone removes one milestone.
func (e *Engine) DeleteMilestone(ctx context.Context, id string) error {
	return e.store.DeleteMilestone(ctx, id)
}
