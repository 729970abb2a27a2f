package engine

import (
	"context"
	"fmt"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// CreateMirror records a pending shadow copy of a canonical event on a
// target account. The write-consumer worker creates the provider copy and
// reports back through SetMirrorState. The canonical event must exist.
func (e *Engine) CreateMirror(ctx context.Context, m *types.Mirror) error {
	if m.CanonicalEventID == "" {
		return fmt.Errorf("canonical_event_id is required")
	}
	if m.TargetAccountID == "" || m.TargetCalendarID == "" {
		return fmt.Errorf("target_account_id and target_calendar_id are required")
	}
	if _, err := e.store.GetEvent(ctx, m.CanonicalEventID); err != nil {
		return err
	}
	if m.State == "" {
		m.State = types.MirrorPending
	}
	return e.store.InsertMirror(ctx, m)
}

// ListMirrors returns the mirrors of one canonical event.
func (e *Engine) ListMirrors(ctx context.Context, canonicalEventID string) ([]*types.Mirror, error) {
	return e.store.MirrorsForEvent(ctx, canonicalEventID)
}

// SetMirrorState advances a mirror's lifecycle. Workers call this after
// the provider write succeeds or fails.
func (e *Engine) SetMirrorState(ctx context.Context, mirrorID string, state types.MirrorState) error {
	switch state {
	case types.MirrorPending, types.MirrorSynced, types.MirrorDeleting, types.MirrorDeleted, types.MirrorFailed:
	default:
		return fmt.Errorf("invalid mirror state %q", state)
	}
	return e.store.UpdateMirrorState(ctx, mirrorID, state)
}
