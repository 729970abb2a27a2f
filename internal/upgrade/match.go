// Package upgrade partitions an ICS feed's canonical events against the
// OAuth account that replaces it. The partition feeds executeUpgrade: a
// matched pair becomes a merged event, an OAuth event with no feed
// counterpart is new, and a feed event the provider no longer returns is
// an orphan.
package upgrade

import (
	"time"

	"github.com/RamXX/tminus-sub002/internal/engine"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// Join keys recorded as matched_by on merged events.
const (
	MatchICalUID   = "ical_uid"
	MatchTimeTitle = "time_title"
)

// timeTitleSlop tolerates feed/provider rounding of start times.
const timeTitleSlop = time.Minute

// Plan matches the ICS account's events against the OAuth account's and
// returns the upgrade request for the actor. ICS feeds carry the iCal UID
// as origin_event_id, so UID equality is the primary join; the fallback is
// an identical title near the same start time.
func Plan(icsAccountID, oauthAccountID string, icsEvents, oauthEvents []*types.CanonicalEvent) *engine.UpgradeRequest {
	req := &engine.UpgradeRequest{
		ICSAccountID:   icsAccountID,
		OAuthAccountID: oauthAccountID,
	}

	byUID := make(map[string]*types.CanonicalEvent, len(icsEvents))
	for _, ev := range icsEvents {
		byUID[ev.OriginEventID] = ev
	}

	matched := make(map[string]bool, len(icsEvents))
	for _, oauth := range oauthEvents {
		ics, how := findMatch(oauth, byUID, icsEvents, matched)
		if ics == nil {
			req.NewEvents = append(req.NewEvents, oauth)
			continue
		}
		matched[ics.OriginEventID] = true
		req.MergedEvents = append(req.MergedEvents, engine.MergedEvent{
			Event:          oauth,
			EnrichedFields: enrichedFields(ics, oauth),
			MatchedBy:      how,
		})
	}

	for _, ics := range icsEvents {
		if !matched[ics.OriginEventID] {
			req.OrphanedEvents = append(req.OrphanedEvents, ics)
		}
	}
	return req
}

func findMatch(oauth *types.CanonicalEvent, byUID map[string]*types.CanonicalEvent, icsEvents []*types.CanonicalEvent, matched map[string]bool) (*types.CanonicalEvent, string) {
	if ics, ok := byUID[oauth.OriginEventID]; ok && !matched[ics.OriginEventID] {
		return ics, MatchICalUID
	}
	for _, ics := range icsEvents {
		if matched[ics.OriginEventID] {
			continue
		}
		if ics.Title == oauth.Title && absDuration(ics.StartTS.Sub(oauth.StartTS)) <= timeTitleSlop {
			return ics, MatchTimeTitle
		}
	}
	return nil, ""
}

// enrichedFields names the tracked fields where the OAuth copy carries a
// value the feed lacked, or a different value. Those fields take the OAuth
// account's authority on the merged event.
func enrichedFields(ics, oauth *types.CanonicalEvent) []string {
	var fields []string
	for _, name := range types.TrackedFields {
		oauthVal, oauthSet := types.FieldValue(oauth, name)
		if !oauthSet {
			continue
		}
		icsVal, icsSet := types.FieldValue(ics, name)
		if !icsSet || icsVal != oauthVal {
			fields = append(fields, name)
		}
	}
	return fields
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
