// Package authority implements the field-level provenance model for
// canonical events. Each tracked field carries a marker naming who last
// wrote it: a provider account ("provider:<id>") or the local owner
// ("tminus"). The functions here are pure; persistence lives in storage.
package authority

import (
	"github.com/RamXX/tminus-sub002/internal/types"
)

// BuildMarkersForInsert returns the marker map for a freshly inserted
// event: every tracked field with a non-null value is owned by the writing
// account.
func BuildMarkersForInsert(accountID string, ev *types.CanonicalEvent) map[string]string {
	markers := make(map[string]string)
	auth := types.ProviderAuthority(accountID)
	for _, field := range types.TrackedFields {
		if _, ok := types.FieldValue(ev, field); ok {
			markers[field] = auth
		}
	}
	return markers
}

// UpdateMarkers returns a new marker map: every tracked field present and
// non-nil in the incoming delta is re-marked to the writing account; all
// other markers are retained.
func UpdateMarkers(current map[string]string, accountID string, incoming *types.EventFields) map[string]string {
	markers := make(map[string]string, len(current))
	for k, v := range current {
		markers[k] = v
	}
	auth := types.ProviderAuthority(accountID)
	for _, field := range types.TrackedFields {
		if _, ok := incoming.Present(field); ok {
			markers[field] = auth
		}
	}
	return markers
}

// EffectiveMarkers resolves the markers surfaced at read time. Legacy rows
// with an empty marker set are treated as if every non-null tracked field
// is owned by the event's origin account; real markers persist after the
// first authoritative write.
func EffectiveMarkers(ev *types.CanonicalEvent) map[string]string {
	if len(ev.AuthorityMarkers) > 0 {
		return ev.AuthorityMarkers
	}
	return BuildMarkersForInsert(ev.OriginAccountID, ev)
}

// DetectConflicts compares an incoming delta from accountID against the
// current event state. A conflict is recorded for every tracked field that
// (a) the delta carries, (b) is currently owned by a different authority,
// and (c) whose value would actually change. The caller still applies the
// write: providers win, and the conflict list is journaled.
func DetectConflicts(current *types.CanonicalEvent, accountID string, incoming *types.EventFields) []types.FieldConflict {
	var conflicts []types.FieldConflict
	markers := EffectiveMarkers(current)
	auth := types.ProviderAuthority(accountID)

	for _, field := range types.TrackedFields {
		newVal, ok := incoming.Present(field)
		if !ok {
			continue
		}
		owner, marked := markers[field]
		if !marked || owner == auth {
			continue
		}
		oldVal, _ := types.FieldValue(current, field)
		if oldVal == newVal {
			continue
		}
		conflicts = append(conflicts, types.FieldConflict{
			Field:             field,
			CurrentAuthority:  owner,
			IncomingAuthority: auth,
			OldValue:          oldVal,
			NewValue:          newVal,
		})
	}
	return conflicts
}
