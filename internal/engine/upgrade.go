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

const (
	reasonICSUpgrade       = "ics_upgrade"
	reasonICSUpgradeMerged = "ics_upgrade_merged"
	reasonICSUpgradeNew    = "ics_upgrade_new"
	reasonICSUpgradeOrphan = "ics_upgrade_orphan"
)

// MergedEvent is an ICS event matched to its richer OAuth counterpart.
// EnrichedFields names the fields whose values came from the OAuth side and
// therefore carry its authority; MatchedBy records the join key (ical_uid,
// fuzzy time match, ...).
type MergedEvent struct {
	Event          *types.CanonicalEvent `json:"event"`
	EnrichedFields []string              `json:"enriched_fields,omitempty"`
	MatchedBy      string                `json:"matched_by"`
}

// UpgradeRequest migrates a read-only ICS feed account to a full OAuth
// account after the matcher has partitioned the feed's events.
type UpgradeRequest struct {
	ICSAccountID   string                  `json:"ics_account_id"`
	OAuthAccountID string                  `json:"oauth_account_id"`
	MergedEvents   []MergedEvent           `json:"merged_events,omitempty"`
	NewEvents      []*types.CanonicalEvent `json:"new_events,omitempty"`
	OrphanedEvents []*types.CanonicalEvent `json:"orphaned_events,omitempty"`
}

// UpgradeResult counts what the migration moved.
type UpgradeResult struct {
	EventsDeleted  int `json:"events_deleted"`
	EventsMerged   int `json:"events_merged"`
	EventsCreated  int `json:"events_created"`
	EventsOrphaned int `json:"events_orphaned"`
}

// ExecuteUpgrade replaces every canonical event of the ICS account with the
// merged, new, and orphaned sets under the OAuth account, in one
// transaction. Orphans keep source=ics_feed so a later feed removal can be
// traced. Mirror teardown for the deleted ICS events is enqueued after
// commit.
func (e *Engine) ExecuteUpgrade(ctx context.Context, req *UpgradeRequest) (*UpgradeResult, error) {
	if req.ICSAccountID == "" || req.OAuthAccountID == "" {
		return nil, fmt.Errorf("ics_account_id and oauth_account_id are required")
	}

	var (
		result  UpgradeResult
		pending []*queue.Message
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		old, err := tx.ListEventsByAccount(ctx, req.ICSAccountID)
		if err != nil {
			return err
		}
		for _, ev := range old {
			msgs, err := mirrorTeardown(ctx, tx, ev.ID)
			if err != nil {
				return err
			}
			pending = append(pending, msgs...)

			entry, err := journalEntry(ev.ID, e.now(), types.LocalAuthority, types.ChangeDeleted,
				reasonICSUpgrade, nil, types.ConflictNone, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, entry); err != nil {
				return err
			}
			if err := tx.DeleteEvent(ctx, ev.ID); err != nil {
				return err
			}
			result.EventsDeleted++
		}

		for _, merged := range req.MergedEvents {
			ev := merged.Event
			ev.ID = ""
			ev.OriginAccountID = req.OAuthAccountID
			ev.Source = types.SourceProvider
			ev.AuthorityMarkers = enrichedMarkers(req.OAuthAccountID, merged.EnrichedFields)
			// The OAuth copy may already be canonical (ingested as a
			// delta before the upgrade ran); the merged record replaces it.
			existing, err := tx.GetEventByOrigin(ctx, req.OAuthAccountID, ev.OriginEventID)
			if err == nil {
				if err := tx.DeleteEvent(ctx, existing.ID); err != nil {
					return err
				}
			} else if !errors.Is(err, sqlite.ErrNotFound) {
				return err
			}
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			entry, err := journalEntry(ev.ID, e.now(), types.ProviderAuthority(req.OAuthAccountID),
				types.ChangeCreated, reasonICSUpgradeMerged,
				map[string]any{"matched_by": merged.MatchedBy, "enriched_fields": merged.EnrichedFields},
				types.ConflictNone, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, entry); err != nil {
				return err
			}
			result.EventsMerged++
		}

		for _, ev := range req.NewEvents {
			ev.ID = ""
			ev.OriginAccountID = req.OAuthAccountID
			ev.Source = types.SourceProvider
			ev.AuthorityMarkers = authority.BuildMarkersForInsert(req.OAuthAccountID, ev)
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			entry, err := journalEntry(ev.ID, e.now(), types.ProviderAuthority(req.OAuthAccountID),
				types.ChangeCreated, reasonICSUpgradeNew, nil, types.ConflictNone, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, entry); err != nil {
				return err
			}
			result.EventsCreated++
		}

		for _, ev := range req.OrphanedEvents {
			ev.ID = ""
			ev.OriginAccountID = req.OAuthAccountID
			ev.Source = types.SourceICSFeed
			ev.AuthorityMarkers = authority.BuildMarkersForInsert(req.OAuthAccountID, ev)
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			entry, err := journalEntry(ev.ID, e.now(), types.LocalAuthority,
				types.ChangeCreated, reasonICSUpgradeOrphan, nil, types.ConflictNone, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertJournal(ctx, entry); err != nil {
				return err
			}
			result.EventsOrphaned++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.publishAll(ctx, pending); err != nil {
		return &result, err
	}
	return &result, nil
}

// enrichedMarkers marks only the OAuth-enriched fields; the rest stay
// unmarked and resolve to the origin account at read time.
func enrichedMarkers(oauthAccountID string, enriched []string) map[string]string {
	markers := make(map[string]string, len(enriched))
	auth := types.ProviderAuthority(oauthAccountID)
	for _, f := range enriched {
		markers[f] = auth
	}
	return markers
}
