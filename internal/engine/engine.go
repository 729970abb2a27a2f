// Package engine implements the per-user operation surface of the calendar
// graph: provider-delta application with field-level authority, constraint
// projection, relationship and commitment workflows, and the ICS-to-OAuth
// account upgrade. One Engine serves exactly one user; the actor layer
// serializes all calls, so nothing here locks.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// Engine is the single-user operation handler.
type Engine struct {
	store storage.Store
	queue queue.Queue
	now   func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over one actor store and the outbound queue.
func New(store storage.Store, q queue.Queue, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		queue: q,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying actor store for pass-through reads and the
// deletion workflow's erasure steps.
func (e *Engine) Store() storage.Store { return e.store }

// journal appends one audit row. patch and resolution are marshaled when
// non-nil.
func journalEntry(eventID string, ts time.Time, actor string, change types.ChangeType, reason string, patch any, conflictType types.ConflictType, resolution any) (*types.JournalEntry, error) {
	entry := &types.JournalEntry{
		CanonicalEventID: eventID,
		TS:               ts,
		Actor:            actor,
		ChangeType:       change,
		Reason:           reason,
		ConflictType:     conflictType,
	}
	if patch != nil {
		b, err := json.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("marshal patch: %w", err)
		}
		entry.PatchJSON = b
	}
	if resolution != nil {
		b, err := json.Marshal(resolution)
		if err != nil {
			return nil, fmt.Errorf("marshal resolution: %w", err)
		}
		entry.Resolution = b
	}
	return entry, nil
}

// publishAll sends queued outbound messages after the transaction committed.
// Publishing is at-least-once; the consumer deduplicates by message identity.
func (e *Engine) publishAll(ctx context.Context, msgs []*queue.Message) error {
	for _, m := range msgs {
		if err := e.queue.Publish(ctx, m); err != nil {
			return fmt.Errorf("publish %s: %w", m.Type, err)
		}
	}
	return nil
}

// mirrorTeardown collects DELETE_MIRROR messages for every mirror of an
// event. The rows themselves cascade when the event is deleted.
func mirrorTeardown(ctx context.Context, tx storage.Ops, eventID string) ([]*queue.Message, error) {
	mirrors, err := tx.MirrorsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	msgs := make([]*queue.Message, 0, len(mirrors))
	for _, m := range mirrors {
		msgs = append(msgs, &queue.Message{
			Type: queue.TypeDeleteMirror,
			DeleteMirror: &queue.DeleteMirror{
				CanonicalEventID: m.CanonicalEventID,
				TargetAccountID:  m.TargetAccountID,
				TargetCalendarID: m.TargetCalendarID,
				ProviderEventID:  m.ProviderEventID,
			},
		})
	}
	return msgs, nil
}

// SyncHealth reports per-account and journal diagnostics for this actor.
func (e *Engine) SyncHealth(ctx context.Context) (*storage.SyncHealth, error) {
	return e.store.SyncHealth(ctx)
}
