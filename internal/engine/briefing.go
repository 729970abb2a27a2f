package engine

import (
	"context"
	"errors"

	"github.com/RamXX/tminus-sub002/internal/reputation"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// GetEvent reads one canonical event.
func (e *Engine) GetEvent(ctx context.Context, id string) (*types.CanonicalEvent, error) {
	return e.store.GetEvent(ctx, id)
}

// ListEvents lists canonical events by filter.
func (e *Engine) ListEvents(ctx context.Context, filter storage.EventFilter) ([]*types.CanonicalEvent, error) {
	return e.store.ListEvents(ctx, filter)
}

// ListAccountEvents lists every canonical event of one origin account.
func (e *Engine) ListAccountEvents(ctx context.Context, accountID string) ([]*types.CanonicalEvent, error) {
	return e.store.ListEventsByAccount(ctx, accountID)
}

// QueryJournal reads the audit trail by filter.
func (e *Engine) QueryJournal(ctx context.Context, filter types.JournalFilter) ([]*types.JournalEntry, error) {
	return e.store.QueryJournal(ctx, filter)
}

// GetEventConflicts returns the authority_conflict journal rows of one event.
func (e *Engine) GetEventConflicts(ctx context.Context, eventID string) ([]*types.JournalEntry, error) {
	return e.store.QueryJournal(ctx, types.JournalFilter{
		CanonicalEventID: eventID,
		ChangeType:       types.ChangeAuthorityConflict,
	})
}

// ParticipantBriefing is one attendee's context for a meeting.
type ParticipantBriefing struct {
	ParticipantHash string               `json:"participant_hash"`
	Relationship    *types.Relationship  `json:"relationship,omitempty"`
	Reputation      *reputation.Scores   `json:"reputation,omitempty"`
	Milestones      []*types.Milestone   `json:"milestones,omitempty"`
	RecentOutcomes  []*types.LedgerEntry `json:"recent_outcomes,omitempty"`
}

// Briefing is the pre-meeting dossier for one canonical event.
type Briefing struct {
	Event        *types.CanonicalEvent `json:"event"`
	Participants []ParticipantBriefing `json:"participants,omitempty"`
	Conflicts    []*types.JournalEntry `json:"conflicts,omitempty"`
}

const recentOutcomeCount = 5

// GetEventBriefing assembles the event, its known participants with
// reputation and milestones, and any journaled authority conflicts.
// Participants with no relationship row appear with just their hash.
func (e *Engine) GetEventBriefing(ctx context.Context, eventID string) (*Briefing, error) {
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	b := &Briefing{Event: ev}

	now := e.now()
	for _, hash := range ev.ParticipantHashes {
		pb := ParticipantBriefing{ParticipantHash: hash}
		rel, err := e.store.GetRelationshipByHash(ctx, hash)
		switch {
		case err == nil:
			pb.Relationship = rel
			entries, err := e.store.ListLedgerEntries(ctx, hash)
			if err != nil {
				return nil, err
			}
			scores := reputation.Compute(entries, now)
			pb.Reputation = &scores
			if len(entries) > recentOutcomeCount {
				entries = entries[len(entries)-recentOutcomeCount:]
			}
			pb.RecentOutcomes = entries
			if pb.Milestones, err = e.store.ListMilestones(ctx, hash); err != nil {
				return nil, err
			}
		case errors.Is(err, sqlite.ErrNotFound):
		default:
			return nil, err
		}
		b.Participants = append(b.Participants, pb)
	}

	conflicts, err := e.GetEventConflicts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	b.Conflicts = conflicts
	return b, nil
}
