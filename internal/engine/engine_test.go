package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
	"github.com/RamXX/tminus-sub002/internal/types"
)

func setupTestEngine(t *testing.T) (*Engine, *sqlite.Store, *queue.Memory) {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	q := queue.NewMemory()
	return New(s, q), s, q
}

func strptr(s string) *string { return &s }

func tsptr(t time.Time) *time.Time { return &t }

func createDelta(account, originID, title string, start, end time.Time) *types.ProviderDelta {
	return &types.ProviderDelta{
		Type:          types.DeltaCreated,
		AccountID:     account,
		OriginEventID: originID,
		Fields: types.EventFields{
			Title:   strptr(title),
			StartTS: tsptr(start),
			EndTS:   tsptr(end),
		},
	}
}

func TestApplyDeltaCreate(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	res, err := e.ApplyProviderDelta(ctx, createDelta("acct-a", "ev-1", "Morning Standup", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("apply create: %v", err)
	}
	if res.Event.ID == "" || res.Deduped {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := res.Event.AuthorityMarkers["title"]; got != "provider:acct-a" {
		t.Errorf("title authority: got %q", got)
	}

	rows, err := s.QueryJournal(ctx, types.JournalFilter{CanonicalEventID: res.Event.ID})
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	if len(rows) != 1 || rows[0].ChangeType != types.ChangeCreated {
		t.Errorf("journal rows: %+v", rows)
	}
}

func TestApplyDeltaCreateDedupes(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first, err := e.ApplyProviderDelta(ctx, createDelta("acct-a", "ev-1", "Standup", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := e.ApplyProviderDelta(ctx, createDelta("acct-a", "ev-1", "Standup (edited)", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Deduped {
		t.Fatal("duplicate create did not degrade to update")
	}
	if second.Event.ID != first.Event.ID {
		t.Errorf("dedup minted a new event: %s vs %s", second.Event.ID, first.Event.ID)
	}
	if second.Event.Title != "Standup (edited)" {
		t.Errorf("title: got %q", second.Event.Title)
	}

	rows, err := s.QueryJournal(ctx, types.JournalFilter{CanonicalEventID: first.Event.ID})
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("journal rows: %+v", rows)
	}
	seen := map[types.ChangeType]int{}
	for _, row := range rows {
		seen[row.ChangeType]++
	}
	if seen[types.ChangeCreated] != 1 || seen[types.ChangeUpdated] != 1 {
		t.Errorf("journal change types: %v", seen)
	}
}

func TestProviderWinsFieldConflict(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	res, err := e.ApplyProviderDelta(ctx, createDelta("A", "ev-1", "Morning Standup", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Claim local ownership of the title, then let the provider write again.
	ev, err := s.GetEvent(ctx, res.Event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	ev.AuthorityMarkers["title"] = types.LocalAuthority
	ev.Version++
	if err := s.UpdateEvent(ctx, ev); err != nil {
		t.Fatalf("update event: %v", err)
	}

	upd, err := e.ApplyProviderDelta(ctx, &types.ProviderDelta{
		Type:          types.DeltaUpdated,
		AccountID:     "A",
		OriginEventID: "ev-1",
		Fields:        types.EventFields{Title: strptr("Provider Override Title")},
	})
	if err != nil {
		t.Fatalf("update delta: %v", err)
	}
	if upd.Event.Title != "Provider Override Title" {
		t.Errorf("provider did not win: title %q", upd.Event.Title)
	}
	if len(upd.Conflicts) != 1 {
		t.Fatalf("conflicts: %+v", upd.Conflicts)
	}

	rows, err := e.GetEventConflicts(ctx, res.Event.ID)
	if err != nil {
		t.Fatalf("get conflicts: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("conflict journal rows: %+v", rows)
	}
	row := rows[0]
	if row.ConflictType != types.ConflictFieldOverride {
		t.Errorf("conflict_type: %q", row.ConflictType)
	}
	var resolution types.ConflictResolution
	if err := json.Unmarshal(row.Resolution, &resolution); err != nil {
		t.Fatalf("unmarshal resolution: %v", err)
	}
	if resolution.Strategy != "provider_wins" || len(resolution.Conflicts) != 1 {
		t.Fatalf("resolution: %+v", resolution)
	}
	c := resolution.Conflicts[0]
	if c.Field != "title" || c.CurrentAuthority != "tminus" || c.IncomingAuthority != "provider:A" {
		t.Errorf("conflict record: %+v", c)
	}
	if c.OldValue != "Morning Standup" || c.NewValue != "Provider Override Title" {
		t.Errorf("conflict values: %+v", c)
	}
}

func TestSameAccountUpdateIsNotAConflict(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := e.ApplyProviderDelta(ctx, createDelta("A", "ev-1", "Standup", start, start.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	upd, err := e.ApplyProviderDelta(ctx, &types.ProviderDelta{
		Type:          types.DeltaUpdated,
		AccountID:     "A",
		OriginEventID: "ev-1",
		Fields:        types.EventFields{Title: strptr("Standup v2")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(upd.Conflicts) != 0 {
		t.Errorf("same-account update conflicted: %+v", upd.Conflicts)
	}
}

func TestDeltaDeleteTearsDownMirrors(t *testing.T) {
	e, s, q := setupTestEngine(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	res, err := e.ApplyProviderDelta(ctx, createDelta("acct-a", "ev-1", "Standup", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mirror := &types.Mirror{
		CanonicalEventID: res.Event.ID,
		TargetAccountID:  "acct-b",
		TargetCalendarID: "primary",
		ProviderEventID:  "prov-9",
	}
	if err := s.InsertMirror(ctx, mirror); err != nil {
		t.Fatalf("insert mirror: %v", err)
	}

	del, err := e.ApplyProviderDelta(ctx, &types.ProviderDelta{
		Type:          types.DeltaDeleted,
		AccountID:     "acct-a",
		OriginEventID: "ev-1",
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !del.Deleted {
		t.Fatal("delete not reported")
	}
	if _, err := s.GetEvent(ctx, res.Event.ID); err == nil {
		t.Fatal("event still present after delete")
	}

	msgs := q.MessagesOfType(queue.TypeDeleteMirror)
	if len(msgs) != 1 {
		t.Fatalf("delete-mirror messages: %+v", msgs)
	}
	if got := msgs[0].DeleteMirror.TargetAccountID; got != "acct-b" {
		t.Errorf("target account: %q", got)
	}
}

func TestDeltaUpdateUnknownOrigin(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	_, err := e.ApplyProviderDelta(context.Background(), &types.ProviderDelta{
		Type:          types.DeltaUpdated,
		AccountID:     "acct-a",
		OriginEventID: "ghost",
		Fields:        types.EventFields{Title: strptr("x")},
	})
	if err == nil {
		t.Fatal("update of unknown origin succeeded")
	}
}

func TestDeltaBumpsLastInteraction(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	rel := &types.Relationship{
		ParticipantHash: "hash-alice",
		Category:        types.CategoryFriend,
		ClosenessWeight: 0.8,
	}
	if err := s.InsertRelationship(ctx, rel); err != nil {
		t.Fatalf("insert relationship: %v", err)
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	delta := createDelta("acct-a", "ev-1", "Coffee", start, start.Add(time.Hour))
	delta.ParticipantHashes = []string{"hash-alice"}
	if _, err := e.ApplyProviderDelta(ctx, delta); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetRelationshipByHash(ctx, "hash-alice")
	if err != nil {
		t.Fatalf("get relationship: %v", err)
	}
	if got.LastInteractionTS == nil || !got.LastInteractionTS.Equal(start) {
		t.Errorf("last_interaction_ts: %v, want %v", got.LastInteractionTS, start)
	}
}

func TestMarkOutcomeOnlyAttendedBumps(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	rel := &types.Relationship{
		ParticipantHash: "hash-bob",
		Category:        types.CategoryColleague,
		ClosenessWeight: 0.4,
	}
	if err := s.InsertRelationship(ctx, rel); err != nil {
		t.Fatalf("insert relationship: %v", err)
	}

	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	if err := e.MarkOutcome(ctx, &types.LedgerEntry{
		ParticipantHash: "hash-bob",
		Outcome:         types.OutcomeCanceledByThem,
		TS:              ts,
	}); err != nil {
		t.Fatalf("mark canceled: %v", err)
	}
	got, _ := s.GetRelationshipByHash(ctx, "hash-bob")
	if got.LastInteractionTS != nil {
		t.Errorf("cancellation bumped last_interaction_ts: %v", got.LastInteractionTS)
	}

	if err := e.MarkOutcome(ctx, &types.LedgerEntry{
		ParticipantHash: "hash-bob",
		Outcome:         types.OutcomeAttended,
		TS:              ts,
	}); err != nil {
		t.Fatalf("mark attended: %v", err)
	}
	got, _ = s.GetRelationshipByHash(ctx, "hash-bob")
	if got.LastInteractionTS == nil || !got.LastInteractionTS.Equal(ts) {
		t.Errorf("attended did not bump: %v", got.LastInteractionTS)
	}

	outcomes, err := e.ListOutcomes(ctx, "hash-bob")
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("ledger: %+v", outcomes)
	}
}

func TestEventBriefing(t *testing.T) {
	e, s, _ := setupTestEngine(t)
	ctx := context.Background()

	rel := &types.Relationship{
		ParticipantHash: "hash-carol",
		DisplayName:     "Carol",
		Category:        types.CategoryInvestor,
		ClosenessWeight: 0.6,
	}
	if err := s.InsertRelationship(ctx, rel); err != nil {
		t.Fatalf("insert relationship: %v", err)
	}
	if err := s.InsertMilestone(ctx, &types.Milestone{
		ParticipantHash: "hash-carol",
		Kind:            types.MilestoneFunding,
		Date:            "2026-01-15",
	}); err != nil {
		t.Fatalf("insert milestone: %v", err)
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	delta := createDelta("acct-a", "ev-1", "Pitch review", start, start.Add(time.Hour))
	delta.ParticipantHashes = []string{"hash-carol", "hash-stranger"}
	res, err := e.ApplyProviderDelta(ctx, delta)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := e.GetEventBriefing(ctx, res.Event.ID)
	if err != nil {
		t.Fatalf("briefing: %v", err)
	}
	if len(b.Participants) != 2 {
		t.Fatalf("participants: %+v", b.Participants)
	}
	carol := b.Participants[0]
	if carol.Relationship == nil || carol.Relationship.DisplayName != "Carol" {
		t.Errorf("carol: %+v", carol)
	}
	if len(carol.Milestones) != 1 {
		t.Errorf("carol milestones: %+v", carol.Milestones)
	}
	stranger := b.Participants[1]
	if stranger.Relationship != nil {
		t.Errorf("stranger has a relationship: %+v", stranger)
	}
}
