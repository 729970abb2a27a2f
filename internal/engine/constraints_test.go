package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RamXX/tminus-sub002/internal/availability"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/types"
)

func tripConstraint(t *testing.T, name string, policy types.BlockPolicy, from, to time.Time) *types.Constraint {
	t.Helper()
	cfg, err := json.Marshal(types.TripConfig{
		Name:        name,
		Timezone:    "UTC",
		BlockPolicy: policy,
	})
	if err != nil {
		t.Fatalf("marshal trip config: %v", err)
	}
	return &types.Constraint{
		Kind:       types.KindTrip,
		Config:     cfg,
		ActiveFrom: &from,
		ActiveTo:   &to,
	}
}

func TestTripProjectsDerivedEvent(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC)
	c := tripConstraint(t, "NYC", types.BlockBusy, from, to)
	if err := e.AddConstraint(ctx, c); err != nil {
		t.Fatalf("add constraint: %v", err)
	}

	events, err := s.ListEventsOverlapping(ctx, from, to, nil)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("derived events: %+v", events)
	}
	derived := events[0]
	if derived.OriginAccountID != types.InternalAccountID {
		t.Errorf("origin account: %q", derived.OriginAccountID)
	}
	if derived.Source != types.SourceSystem {
		t.Errorf("source: %q", derived.Source)
	}
	if derived.Title != "Busy" {
		t.Errorf("title under BUSY policy: %q", derived.Title)
	}
	if derived.ConstraintID != c.ID {
		t.Errorf("constraint id: %q", derived.ConstraintID)
	}
	if derived.Transparency != types.TransparencyOpaque {
		t.Errorf("transparency: %q", derived.Transparency)
	}
}

func TestTripUpdateReplacesDerivedEvent(t *testing.T) {
	e, s, q := setupTestEngine(t)
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC)
	c := tripConstraint(t, "NYC", types.BlockBusy, from, to)
	if err := e.AddConstraint(ctx, c); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	old, err := s.EventsByConstraint(ctx, c.ID)
	if err != nil || len(old) != 1 {
		t.Fatalf("old derived: %v %v", old, err)
	}
	if err := s.InsertMirror(ctx, &types.Mirror{
		CanonicalEventID: old[0].ID,
		TargetAccountID:  "acct-b",
		TargetCalendarID: "primary",
	}); err != nil {
		t.Fatalf("insert mirror: %v", err)
	}

	updated := tripConstraint(t, "NYC", types.BlockTitle, from, to)
	updated.ID = c.ID
	if err := e.UpdateConstraint(ctx, updated); err != nil {
		t.Fatalf("update constraint: %v", err)
	}

	fresh, err := s.EventsByConstraint(ctx, c.ID)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("new derived: %v %v", fresh, err)
	}
	if fresh[0].ID == old[0].ID {
		t.Error("derived event was not replaced")
	}
	if fresh[0].Title != "NYC" {
		t.Errorf("title under TITLE policy: %q", fresh[0].Title)
	}

	deletions, err := s.QueryJournal(ctx, types.JournalFilter{CanonicalEventID: old[0].ID, ChangeType: types.ChangeDeleted})
	if err != nil || len(deletions) != 1 {
		t.Fatalf("deletion journal: %v %v", deletions, err)
	}
	if deletions[0].Reason != reasonConstraintDeleted {
		t.Errorf("deletion reason: %q", deletions[0].Reason)
	}
	creations, err := s.QueryJournal(ctx, types.JournalFilter{CanonicalEventID: fresh[0].ID, ChangeType: types.ChangeCreated})
	if err != nil || len(creations) != 1 {
		t.Fatalf("creation journal: %v %v", creations, err)
	}
	if creations[0].Reason != reasonTripConstraint {
		t.Errorf("creation reason: %q", creations[0].Reason)
	}

	msgs := q.MessagesOfType(queue.TypeDeleteMirror)
	if len(msgs) != 1 {
		t.Fatalf("mirror teardown messages: %+v", msgs)
	}
}

func TestDeleteConstraintRemovesDerivedEvent(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	c := tripConstraint(t, "Lisbon", types.BlockTitle, from, to)
	if err := e.AddConstraint(ctx, c); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	if err := e.DeleteConstraint(ctx, c.ID); err != nil {
		t.Fatalf("delete constraint: %v", err)
	}

	events, err := s.ListEventsOverlapping(ctx, from, to, nil)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("derived events survived: %+v", events)
	}
	if _, err := e.GetConstraint(ctx, c.ID); err == nil {
		t.Error("constraint still present")
	}
}

func TestInvalidConstraintConfigRejected(t *testing.T) {
	e, _, _ := setupTestEngine(t)

	cfg, _ := json.Marshal(types.BufferConfig{Type: "nap", Minutes: 15, AppliesTo: "all"})
	err := e.AddConstraint(context.Background(), &types.Constraint{Kind: types.KindBuffer, Config: cfg})
	if err == nil {
		t.Fatal("invalid buffer type accepted")
	}
}

func TestConstraintEngineAvailability(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	// Real meeting plus a travel buffer: availability carves out both.
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := e.ApplyProviderDelta(ctx, createDelta("acct-a", "ev-1", "Client sync", start, start.Add(time.Hour))); err != nil {
		t.Fatalf("create event: %v", err)
	}
	cfg, _ := json.Marshal(types.BufferConfig{Type: types.BufferTravel, Minutes: 15, AppliesTo: "all"})
	if err := e.AddConstraint(ctx, &types.Constraint{Kind: types.KindBuffer, Config: cfg}); err != nil {
		t.Fatalf("add buffer: %v", err)
	}

	res, err := e.ComputeAvailability(ctx, availability.Request{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("compute availability: %v", err)
	}
	if len(res.BusyIntervals) != 1 {
		t.Fatalf("busy: %+v", res.BusyIntervals)
	}
	busy := res.BusyIntervals[0]
	if !busy.Start.Equal(start.Add(-15*time.Minute)) || !busy.End.Equal(start.Add(time.Hour)) {
		t.Errorf("busy interval: %v", busy)
	}
}
