package engine

import (
	"context"
	"fmt"

	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

const (
	reasonTripConstraint    = "trip_constraint"
	reasonConstraintDeleted = "constraint_deleted"
)

// AddConstraint validates and persists a constraint. Variants that declare
// derived events project them in the same transaction.
func (e *Engine) AddConstraint(ctx context.Context, c *types.Constraint) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertConstraint(ctx, c); err != nil {
			return err
		}
		return e.projectDerived(ctx, tx, c)
	})
}

// UpdateConstraint rewrites a constraint. Old derived events are deleted
// (with mirror teardown enqueued) and fresh ones projected from the new
// window and config.
func (e *Engine) UpdateConstraint(ctx context.Context, c *types.Constraint) error {
	var pending []*queue.Message
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetConstraint(ctx, c.ID); err != nil {
			return err
		}
		msgs, err := e.teardownDerived(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		pending = msgs
		if err := tx.UpdateConstraint(ctx, c); err != nil {
			return err
		}
		return e.projectDerived(ctx, tx, c)
	})
	if err != nil {
		return err
	}
	return e.publishAll(ctx, pending)
}

// DeleteConstraint removes a constraint and its derived events, enqueueing
// mirror teardown for each.
func (e *Engine) DeleteConstraint(ctx context.Context, id string) error {
	var pending []*queue.Message
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		msgs, err := e.teardownDerived(ctx, tx, id)
		if err != nil {
			return err
		}
		pending = msgs
		return tx.DeleteConstraint(ctx, id)
	})
	if err != nil {
		return err
	}
	return e.publishAll(ctx, pending)
}

// GetConstraint reads one constraint by id.
func (e *Engine) GetConstraint(ctx context.Context, id string) (*types.Constraint, error) {
	return e.store.GetConstraint(ctx, id)
}

// ListConstraints lists constraints, optionally filtered by kind.
func (e *Engine) ListConstraints(ctx context.Context, kind types.ConstraintKind) ([]*types.Constraint, error) {
	return e.store.ListConstraints(ctx, kind)
}

// projectDerived inserts the derived canonical events a constraint declares.
// A trip projects exactly one opaque system event spanning its window.
func (e *Engine) projectDerived(ctx context.Context, tx storage.Tx, c *types.Constraint) error {
	if !c.HasDerivedEvents() {
		return nil
	}
	cfg, err := c.TripConfig()
	if err != nil {
		return err
	}
	title := "Busy"
	if cfg.BlockPolicy == types.BlockTitle {
		title = cfg.Name
	}
	ev := &types.CanonicalEvent{
		OriginAccountID: types.InternalAccountID,
		OriginEventID:   fmt.Sprintf("constraint:%s", c.ID),
		Title:           title,
		StartTS:         c.ActiveFrom.UTC(),
		EndTS:           c.ActiveTo.UTC(),
		Timezone:        cfg.Timezone,
		Status:          types.StatusConfirmed,
		Transparency:    types.TransparencyOpaque,
		Source:          types.SourceSystem,
		ConstraintID:    c.ID,
	}
	ev.AuthorityMarkers = localMarkers(ev)
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return err
	}
	entry, err := journalEntry(ev.ID, e.now(), types.LocalAuthority, types.ChangeCreated,
		reasonTripConstraint, map[string]string{"constraint_id": c.ID}, types.ConflictNone, nil)
	if err != nil {
		return err
	}
	return tx.InsertJournal(ctx, entry)
}

// teardownDerived deletes every derived event owned by the constraint,
// journaling each deletion and collecting mirror teardown messages.
func (e *Engine) teardownDerived(ctx context.Context, tx storage.Tx, constraintID string) ([]*queue.Message, error) {
	derived, err := tx.EventsByConstraint(ctx, constraintID)
	if err != nil {
		return nil, err
	}
	var pending []*queue.Message
	for _, ev := range derived {
		msgs, err := mirrorTeardown(ctx, tx, ev.ID)
		if err != nil {
			return nil, err
		}
		pending = append(pending, msgs...)

		entry, err := journalEntry(ev.ID, e.now(), types.LocalAuthority, types.ChangeDeleted,
			reasonConstraintDeleted, map[string]string{"constraint_id": constraintID}, types.ConflictNone, nil)
		if err != nil {
			return nil, err
		}
		if err := tx.InsertJournal(ctx, entry); err != nil {
			return nil, err
		}
		if err := tx.DeleteEvent(ctx, ev.ID); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

// localMarkers marks every non-null tracked field as locally owned. Derived
// events are never provider-mutable.
func localMarkers(ev *types.CanonicalEvent) map[string]string {
	markers := make(map[string]string)
	for _, field := range types.TrackedFields {
		if _, ok := types.FieldValue(ev, field); ok {
			markers[field] = types.LocalAuthority
		}
	}
	return markers
}
