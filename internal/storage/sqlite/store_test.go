package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEvent(accountID, originID string) *types.CanonicalEvent {
	return &types.CanonicalEvent{
		OriginAccountID: accountID,
		OriginEventID:   originID,
		Title:           "Team Sync",
		StartTS:         time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTS:           time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		Status:          types.StatusConfirmed,
		Transparency:    types.TransparencyOpaque,
		Source:          types.SourceProvider,
	}
}

func TestEventRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent("acct-a", "ext-1")
	ev.Description = "weekly"
	ev.AuthorityMarkers = map[string]string{"title": types.LocalAuthority}
	ev.ParticipantHashes = []string{"hash-1", "hash-2"}
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("insert did not assign an id")
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "Team Sync" || got.Description != "weekly" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.AuthorityMarkers["title"] != types.LocalAuthority {
		t.Errorf("authority markers not preserved: %v", got.AuthorityMarkers)
	}
	if len(got.ParticipantHashes) != 2 {
		t.Errorf("participant hashes not preserved: %v", got.ParticipantHashes)
	}
	if !got.StartTS.Equal(ev.StartTS) || !got.EndTS.Equal(ev.EndTS) {
		t.Errorf("timestamps drifted: got [%s, %s]", got.StartTS, got.EndTS)
	}

	byOrigin, err := s.GetEventByOrigin(ctx, "acct-a", "ext-1")
	if err != nil {
		t.Fatalf("get by origin failed: %v", err)
	}
	if byOrigin.ID != ev.ID {
		t.Errorf("origin lookup returned %s, want %s", byOrigin.ID, ev.ID)
	}
}

func TestEventDuplicateOrigin(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.InsertEvent(ctx, testEvent("acct-a", "ext-1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := s.InsertEvent(ctx, testEvent("acct-a", "ext-1"))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate origin: got %v, want ErrConflict", err)
	}
	// Same origin id on another account is a different event.
	if err := s.InsertEvent(ctx, testEvent("acct-b", "ext-1")); err != nil {
		t.Errorf("cross-account insert failed: %v", err)
	}
}

func TestEventInvalidInterval(t *testing.T) {
	s := setupTestStore(t)

	ev := testEvent("acct-a", "ext-1")
	ev.StartTS, ev.EndTS = ev.EndTS, ev.StartTS
	if err := s.InsertEvent(context.Background(), ev); err == nil {
		t.Error("inverted interval accepted")
	}
}

func TestEventVersionMonotonicity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent("acct-a", "ext-1")
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	ev.Title = "Renamed"
	ev.Version = 2
	if err := s.UpdateEvent(ctx, ev); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Replaying the same version must be rejected.
	ev.Title = "Replayed"
	if err := s.UpdateEvent(ctx, ev); !errors.Is(err, ErrConflict) {
		t.Errorf("stale version: got %v, want ErrConflict", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "Renamed" || got.Version != 2 {
		t.Errorf("stale update leaked: %+v", got)
	}

	if err := s.UpdateEvent(ctx, testEvent("acct-a", "missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing event: got %v, want ErrNotFound", err)
	}
}

func TestListEventsOverlapping(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mk := func(origin string, startHour, endHour int) *types.CanonicalEvent {
		ev := testEvent("acct-a", origin)
		ev.StartTS = time.Date(2026, 3, 2, startHour, 0, 0, 0, time.UTC)
		ev.EndTS = time.Date(2026, 3, 2, endHour, 0, 0, 0, time.UTC)
		return ev
	}
	for _, ev := range []*types.CanonicalEvent{mk("before", 6, 7), mk("inside", 10, 11), mk("spanning", 8, 18), mk("after", 20, 21)} {
		if err := s.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	cancelled := mk("cancelled", 10, 11)
	cancelled.Status = types.StatusCancelled
	if err := s.InsertEvent(ctx, cancelled); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.ListEventsOverlapping(ctx,
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (inside, spanning)", len(got))
	}
	for _, ev := range got {
		if ev.OriginEventID == "before" || ev.OriginEventID == "after" || ev.OriginEventID == "cancelled" {
			t.Errorf("unexpected event in window: %s", ev.OriginEventID)
		}
	}
}

func TestJournalFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i, ct := range []types.ChangeType{types.ChangeCreated, types.ChangeUpdated, types.ChangeAuthorityConflict} {
		err := s.InsertJournal(ctx, &types.JournalEntry{
			CanonicalEventID: "ev-1",
			TS:               time.Date(2026, 3, 2, 10, i, 0, 0, time.UTC),
			Actor:            "provider:acct-a",
			ChangeType:       ct,
		})
		if err != nil {
			t.Fatalf("insert journal failed: %v", err)
		}
	}
	if err := s.InsertJournal(ctx, &types.JournalEntry{CanonicalEventID: "ev-2", ChangeType: types.ChangeCreated}); err != nil {
		t.Fatalf("insert journal failed: %v", err)
	}

	byEvent, err := s.QueryJournal(ctx, types.JournalFilter{CanonicalEventID: "ev-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(byEvent) != 3 {
		t.Errorf("by event: got %d entries, want 3", len(byEvent))
	}

	conflicts, err := s.QueryJournal(ctx, types.JournalFilter{ChangeType: types.ChangeAuthorityConflict})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Errorf("conflicts: got %d entries, want 1", len(conflicts))
	}

	n, err := s.DeleteAllJournal(ctx)
	if err != nil {
		t.Fatalf("delete all failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d journal entries, want 4", n)
	}
}

func TestMirrorsCascadeWithEvent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent("acct-a", "ext-1")
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert event failed: %v", err)
	}
	m := &types.Mirror{CanonicalEventID: ev.ID, TargetAccountID: "acct-b", TargetCalendarID: "primary"}
	if err := s.InsertMirror(ctx, m); err != nil {
		t.Fatalf("insert mirror failed: %v", err)
	}
	if err := s.UpdateMirrorState(ctx, m.ID, types.MirrorSynced); err != nil {
		t.Fatalf("update mirror state failed: %v", err)
	}

	mirrors, err := s.MirrorsForEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("mirrors for event failed: %v", err)
	}
	if len(mirrors) != 1 || mirrors[0].State != types.MirrorSynced {
		t.Fatalf("unexpected mirrors: %+v", mirrors)
	}

	if err := s.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("delete event failed: %v", err)
	}
	mirrors, err = s.MirrorsForEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("mirrors for event failed: %v", err)
	}
	if len(mirrors) != 0 {
		t.Errorf("mirrors survived event deletion: %+v", mirrors)
	}
}

func TestConstraintRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := &types.Constraint{
		Kind:   types.KindWorkingHours,
		Config: []byte(`{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"America/New_York"}`),
	}
	if err := s.InsertConstraint(ctx, c); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.GetConstraint(ctx, c.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Kind != types.KindWorkingHours {
		t.Errorf("kind: got %q", got.Kind)
	}

	byKind, err := s.ListConstraints(ctx, types.KindWorkingHours)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byKind) != 1 {
		t.Errorf("list by kind: got %d, want 1", len(byKind))
	}

	// Derived events reference their constraint; the store enforces it.
	ev := testEvent("internal", "derived-1")
	ev.Source = types.SourceSystem
	ev.ConstraintID = "no-such-constraint"
	if err := s.InsertEvent(ctx, ev); !errors.Is(err, ErrStructuralConstraint) {
		t.Errorf("dangling constraint_id: got %v, want ErrStructuralConstraint", err)
	}
	ev.ConstraintID = c.ID
	ev.OriginEventID = "derived-2"
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("derived insert failed: %v", err)
	}
	derived, err := s.EventsByConstraint(ctx, c.ID)
	if err != nil {
		t.Fatalf("events by constraint failed: %v", err)
	}
	if len(derived) != 1 {
		t.Errorf("events by constraint: got %d, want 1", len(derived))
	}
}

func TestRelationshipLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := &types.Relationship{
		ParticipantHash:            "hash-maya",
		DisplayName:                "Maya",
		Category:                   types.CategoryFriend,
		ClosenessWeight:            0.8,
		InteractionFrequencyTarget: 30,
	}
	if err := s.InsertRelationship(ctx, r); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	dup := &types.Relationship{ParticipantHash: "hash-maya", Category: types.CategoryOther, ClosenessWeight: 0.5}
	if err := s.InsertRelationship(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate hash: got %v, want ErrConflict", err)
	}

	ts := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	n, err := s.UpdateLastInteraction(ctx, []string{"hash-maya", "hash-unknown"}, ts)
	if err != nil {
		t.Fatalf("update last interaction failed: %v", err)
	}
	if n != 1 {
		t.Errorf("updated %d relationships, want 1", n)
	}
	got, err := s.GetRelationshipByHash(ctx, "hash-maya")
	if err != nil {
		t.Fatalf("get by hash failed: %v", err)
	}
	if got.LastInteractionTS == nil || !got.LastInteractionTS.Equal(ts) {
		t.Errorf("last_interaction_ts not updated: %v", got.LastInteractionTS)
	}

	if err := s.InsertLedgerEntry(ctx, &types.LedgerEntry{ParticipantHash: "hash-maya", Outcome: types.OutcomeAttended}); err != nil {
		t.Fatalf("ledger insert failed: %v", err)
	}
	if err := s.InsertLedgerEntry(ctx, &types.LedgerEntry{ParticipantHash: "hash-nobody", Outcome: types.OutcomeAttended}); !errors.Is(err, ErrStructuralConstraint) {
		t.Errorf("ledger for unknown hash: got %v, want ErrStructuralConstraint", err)
	}
	if err := s.InsertMilestone(ctx, &types.Milestone{ParticipantHash: "hash-maya", Kind: types.MilestoneBirthday, Date: "1992-02-29", RecursAnnually: true}); err != nil {
		t.Fatalf("milestone insert failed: %v", err)
	}

	// Cascade: ledger and milestones go with the relationship.
	if err := s.DeleteRelationship(ctx, r.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	entries, err := s.ListLedgerEntries(ctx, "hash-maya")
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ledger survived relationship deletion: %+v", entries)
	}
	ms, err := s.ListMilestones(ctx, "hash-maya")
	if err != nil {
		t.Fatalf("list milestones failed: %v", err)
	}
	if len(ms) != 0 {
		t.Errorf("milestones survived relationship deletion: %+v", ms)
	}
}

func TestDriftAlertsReplace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, hash := range []string{"hash-a", "hash-b"} {
		r := &types.Relationship{ParticipantHash: hash, Category: types.CategoryFriend, ClosenessWeight: 0.5}
		if err := s.InsertRelationship(ctx, r); err != nil {
			t.Fatalf("insert relationship failed: %v", err)
		}
	}

	err := s.ReplaceDriftAlerts(ctx, []types.DriftAlert{
		{ParticipantHash: "hash-a", Category: types.CategoryFriend, Urgency: 2.5, DaysOverdue: 5},
		{ParticipantHash: "hash-b", Category: types.CategoryFriend, Urgency: 7.0, DaysOverdue: 14},
	})
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	// Second replace supersedes the first entirely.
	err = s.ReplaceDriftAlerts(ctx, []types.DriftAlert{
		{ParticipantHash: "hash-b", Category: types.CategoryFriend, Urgency: 3.0, DaysOverdue: 6},
	})
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	alerts, err := s.ListDriftAlerts(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ParticipantHash != "hash-b" || alerts[0].DaysOverdue != 6 {
		t.Errorf("unexpected snapshot: %+v", alerts)
	}
}

func TestAllocatedHours(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := &types.Commitment{ClientID: "client-1", TargetHours: 10, WindowType: types.WindowWeekly}
	if err := s.InsertCommitment(ctx, c); err != nil {
		t.Fatalf("insert commitment failed: %v", err)
	}
	if c.RollingWindowWeeks != 4 {
		t.Errorf("rolling window default: got %d, want 4", c.RollingWindowWeeks)
	}
	if err := s.InsertCommitment(ctx, &types.Commitment{ClientID: "client-1", TargetHours: 5, WindowType: types.WindowWeekly}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate client: got %v, want ErrConflict", err)
	}

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mk := func(origin string, startHour int, d time.Duration, status types.EventStatus) *types.CanonicalEvent {
		ev := testEvent("acct-a", origin)
		ev.StartTS = day.Add(time.Duration(startHour) * time.Hour)
		ev.EndTS = ev.StartTS.Add(d)
		ev.Status = status
		return ev
	}
	inWindow := mk("e1", 9, 2*time.Hour, types.StatusConfirmed)
	alsoIn := mk("e2", 14, 90*time.Minute, types.StatusConfirmed)
	cancelled := mk("e3", 16, time.Hour, types.StatusCancelled)
	outside := mk("e4", 9, time.Hour, types.StatusConfirmed)
	outside.StartTS = outside.StartTS.AddDate(0, 0, 10)
	outside.EndTS = outside.EndTS.AddDate(0, 0, 10)

	for _, ev := range []*types.CanonicalEvent{inWindow, alsoIn, cancelled, outside} {
		if err := s.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("insert event failed: %v", err)
		}
		if err := s.InsertAllocation(ctx, &types.Allocation{CanonicalEventID: ev.ID, ClientID: "client-1"}); err != nil {
			t.Fatalf("insert allocation failed: %v", err)
		}
	}

	hours, err := s.AllocatedHours(ctx, "client-1", day, day.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("allocated hours failed: %v", err)
	}
	if hours != 3.5 {
		t.Errorf("allocated hours: got %g, want 3.5", hours)
	}
}

func TestSyncHealth(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	empty, err := s.SyncHealth(ctx)
	if err != nil {
		t.Fatalf("sync health failed: %v", err)
	}
	if len(empty.EventsByAccount) != 0 || empty.LastWriteTS != nil {
		t.Errorf("empty store: %+v", empty)
	}

	for i := 0; i < 3; i++ {
		if err := s.InsertEvent(ctx, testEvent("acct-a", fmt.Sprintf("a-%d", i))); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if err := s.InsertEvent(ctx, testEvent("acct-b", "b-0")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.InsertJournal(ctx, &types.JournalEntry{CanonicalEventID: "x", ChangeType: types.ChangeAuthorityConflict}); err != nil {
		t.Fatalf("insert journal failed: %v", err)
	}

	h, err := s.SyncHealth(ctx)
	if err != nil {
		t.Fatalf("sync health failed: %v", err)
	}
	if h.EventsByAccount["acct-a"] != 3 || h.EventsByAccount["acct-b"] != 1 {
		t.Errorf("events by account: %+v", h.EventsByAccount)
	}
	if h.JournalDepth != 1 || h.ConflictCount != 1 {
		t.Errorf("journal counters: depth=%d conflicts=%d", h.JournalDepth, h.ConflictCount)
	}
	if h.LastWriteTS == nil {
		t.Error("last_write_ts missing after writes")
	}
}

func TestRunInTransactionRollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertEvent(ctx, testEvent("acct-a", "ext-1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction error: got %v", err)
	}

	events, err := s.ListEvents(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("rolled-back insert visible: %+v", events)
	}

	err = s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.InsertEvent(ctx, testEvent("acct-a", "ext-1"))
	})
	if err != nil {
		t.Fatalf("committed transaction failed: %v", err)
	}
	events, err = s.ListEvents(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("committed insert missing: %+v", events)
	}
}

func TestDeleteRelationshipData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := &types.Relationship{ParticipantHash: "hash-a", Category: types.CategoryClient, ClosenessWeight: 0.5}
	if err := s.InsertRelationship(ctx, r); err != nil {
		t.Fatalf("insert relationship failed: %v", err)
	}
	if err := s.InsertLedgerEntry(ctx, &types.LedgerEntry{ParticipantHash: "hash-a", Outcome: types.OutcomeAttended}); err != nil {
		t.Fatalf("insert ledger failed: %v", err)
	}
	if err := s.InsertMilestone(ctx, &types.Milestone{ParticipantHash: "hash-a", Kind: types.MilestoneCustom, Date: "2026-06-01"}); err != nil {
		t.Fatalf("insert milestone failed: %v", err)
	}
	if err := s.ReplaceDriftAlerts(ctx, []types.DriftAlert{{ParticipantHash: "hash-a", Category: types.CategoryClient}}); err != nil {
		t.Fatalf("replace drift failed: %v", err)
	}

	n, err := s.DeleteRelationshipData(ctx)
	if err != nil {
		t.Fatalf("delete relationship data failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d rows, want 4", n)
	}

	// A second run is a no-op: idempotent erasure.
	n, err = s.DeleteRelationshipData(ctx)
	if err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if n != 0 {
		t.Errorf("repeat delete removed %d rows, want 0", n)
	}
}

func TestFileStoreReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "actor.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ev := testEvent("acct-a", "ext-1")
	if err := s.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	s2, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if got.Title != ev.Title {
		t.Errorf("persisted event mismatch: %+v", got)
	}
}
