package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/RamXX/tminus-sub002/internal/authority"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// DeltaResult reports what one provider delta did to the canonical store.
type DeltaResult struct {
	Event     *types.CanonicalEvent `json:"event,omitempty"`
	Conflicts []types.FieldConflict `json:"conflicts,omitempty"`
	Deduped   bool                  `json:"deduped,omitempty"`
	Deleted   bool                  `json:"deleted,omitempty"`
}

// ApplyProviderDelta applies one inbound change from an external calendar.
// Providers win field conflicts; every conflict is journaled alongside the
// data change. A created delta for an existing (account, origin event) pair
// degrades to an update. Participant hashes on the delta bump
// last_interaction_ts using the event's start time.
func (e *Engine) ApplyProviderDelta(ctx context.Context, delta *types.ProviderDelta) (*DeltaResult, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	var (
		result  DeltaResult
		pending []*queue.Message
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		existing, err := tx.GetEventByOrigin(ctx, delta.AccountID, delta.OriginEventID)
		if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
			return err
		}

		switch delta.Type {
		case types.DeltaCreated:
			if existing != nil {
				result.Deduped = true
				return e.applyUpdate(ctx, tx, existing, delta, &result)
			}
			return e.applyCreate(ctx, tx, delta, &result)

		case types.DeltaUpdated:
			if existing == nil {
				return fmt.Errorf("update for %s/%s: %w", delta.AccountID, delta.OriginEventID, sqlite.ErrUnknownOrigin)
			}
			return e.applyUpdate(ctx, tx, existing, delta, &result)

		case types.DeltaCancelled:
			if existing == nil {
				return fmt.Errorf("cancel for %s/%s: %w", delta.AccountID, delta.OriginEventID, sqlite.ErrUnknownOrigin)
			}
			cancelled := string(types.StatusCancelled)
			delta.Fields.Status = &cancelled
			return e.applyUpdate(ctx, tx, existing, delta, &result)

		case types.DeltaDeleted:
			if existing == nil {
				return fmt.Errorf("delete for %s/%s: %w", delta.AccountID, delta.OriginEventID, sqlite.ErrUnknownOrigin)
			}
			msgs, err := mirrorTeardown(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			pending = msgs
			entry, err := journalEntry(existing.ID, e.now(), types.ProviderAuthority(delta.AccountID),
				types.ChangeDeleted, "", nil, types.ConflictNone, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, entry); err != nil {
				return err
			}
			if err := tx.DeleteEvent(ctx, existing.ID); err != nil {
				return err
			}
			result.Deleted = true
			return nil
		}
		return fmt.Errorf("invalid delta type %q", delta.Type)
	})
	if err != nil {
		return nil, err
	}
	if err := e.publishAll(ctx, pending); err != nil {
		return &result, err
	}
	return &result, nil
}

func (e *Engine) applyCreate(ctx context.Context, tx storage.Tx, delta *types.ProviderDelta, result *DeltaResult) error {
	ev := &types.CanonicalEvent{
		OriginAccountID:   delta.AccountID,
		OriginEventID:     delta.OriginEventID,
		Status:            types.StatusConfirmed,
		Source:            types.SourceProvider,
		ParticipantHashes: delta.ParticipantHashes,
	}
	if delta.Source != "" {
		ev.Source = delta.Source
	}
	delta.Fields.ApplyTo(ev)
	ev.AuthorityMarkers = authority.BuildMarkersForInsert(delta.AccountID, ev)

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return err
	}
	entry, err := journalEntry(ev.ID, e.now(), types.ProviderAuthority(delta.AccountID),
		types.ChangeCreated, "", delta.Fields, types.ConflictNone, nil)
	if err != nil {
		return err
	}
	if err := tx.InsertJournal(ctx, entry); err != nil {
		return err
	}
	if err := e.bumpInteractions(ctx, tx, ev); err != nil {
		return err
	}
	result.Event = ev
	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, tx storage.Tx, current *types.CanonicalEvent, delta *types.ProviderDelta, result *DeltaResult) error {
	conflicts := authority.DetectConflicts(current, delta.AccountID, &delta.Fields)
	current.AuthorityMarkers = authority.UpdateMarkers(
		authority.EffectiveMarkers(current), delta.AccountID, &delta.Fields)
	delta.Fields.ApplyTo(current)
	if len(delta.ParticipantHashes) > 0 {
		current.ParticipantHashes = delta.ParticipantHashes
	}
	current.Version++

	if err := tx.UpdateEvent(ctx, current); err != nil {
		return err
	}
	entry, err := journalEntry(current.ID, e.now(), types.ProviderAuthority(delta.AccountID),
		types.ChangeUpdated, "", delta.Fields, types.ConflictNone, nil)
	if err != nil {
		return err
	}
	if err := tx.InsertJournal(ctx, entry); err != nil {
		return err
	}
	if len(conflicts) > 0 {
		conflictEntry, err := journalEntry(current.ID, e.now(), types.ProviderAuthority(delta.AccountID),
			types.ChangeAuthorityConflict, "", nil, types.ConflictFieldOverride,
			types.ConflictResolution{Strategy: "provider_wins", Conflicts: conflicts})
		if err != nil {
			return err
		}
		if err := tx.InsertJournal(ctx, conflictEntry); err != nil {
			return err
		}
	}
	if err := e.bumpInteractions(ctx, tx, current); err != nil {
		return err
	}
	result.Event = current
	result.Conflicts = conflicts
	return nil
}

// bumpInteractions sets last_interaction_ts for every relationship whose
// participant hash appears on the event, using the event start time.
func (e *Engine) bumpInteractions(ctx context.Context, tx storage.Tx, ev *types.CanonicalEvent) error {
	if len(ev.ParticipantHashes) == 0 {
		return nil
	}
	_, err := tx.UpdateLastInteraction(ctx, ev.ParticipantHashes, ev.StartTS)
	return err
}
