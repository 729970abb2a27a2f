package deletion

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RamXX/tminus-sub002/internal/blob"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/registry"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
	"github.com/RamXX/tminus-sub002/internal/types"
)

var testKey = []byte("test-master-key")

type fixture struct {
	workflow *Workflow
	store    *sqlite.Store
	registry *registry.Registry
	blobs    *blob.FilesystemStore
	queue    *queue.Memory
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg, err := registry.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	blobs, err := blob.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	q := queue.NewMemory()

	return &fixture{
		workflow: New(s, reg, blobs, q, testKey),
		store:    s,
		registry: reg,
		blobs:    blobs,
		queue:    q,
	}
}

// seedUser populates every per-user surface: events with mirrors and
// journal rows, a relationship with ledger and milestone, a constraint, a
// commitment, registry rows, and audit blobs.
func seedUser(t *testing.T, f *fixture, userID string) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i, originID := range []string{"ev-1", "ev-2"} {
		ev := &types.CanonicalEvent{
			OriginAccountID: "acct-1",
			OriginEventID:   originID,
			Title:           "Meeting",
			StartTS:         start.Add(time.Duration(i) * 2 * time.Hour),
			EndTS:           start.Add(time.Duration(i)*2*time.Hour + time.Hour),
			Status:          types.StatusConfirmed,
			Source:          types.SourceProvider,
		}
		if err := f.store.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("insert event: %v", err)
		}
		if err := f.store.InsertMirror(ctx, &types.Mirror{
			CanonicalEventID: ev.ID,
			TargetAccountID:  "acct-2",
			TargetCalendarID: "primary",
		}); err != nil {
			t.Fatalf("insert mirror: %v", err)
		}
		if err := f.store.InsertJournal(ctx, &types.JournalEntry{
			CanonicalEventID: ev.ID,
			TS:               start,
			Actor:            "provider:acct-1",
			ChangeType:       types.ChangeCreated,
			ConflictType:     types.ConflictNone,
		}); err != nil {
			t.Fatalf("insert journal: %v", err)
		}
	}

	if err := f.store.InsertRelationship(ctx, &types.Relationship{
		ParticipantHash: "hash-alice",
		Category:        types.CategoryFriend,
		ClosenessWeight: 0.7,
	}); err != nil {
		t.Fatalf("insert relationship: %v", err)
	}
	if err := f.store.InsertLedgerEntry(ctx, &types.LedgerEntry{
		ParticipantHash: "hash-alice",
		Outcome:         types.OutcomeAttended,
		TS:              start,
	}); err != nil {
		t.Fatalf("insert ledger: %v", err)
	}
	if err := f.store.InsertMilestone(ctx, &types.Milestone{
		ParticipantHash: "hash-alice",
		Kind:            types.MilestoneBirthday,
		Date:            "1990-06-01",
	}); err != nil {
		t.Fatalf("insert milestone: %v", err)
	}

	cfg, _ := json.Marshal(types.BufferConfig{Type: types.BufferTravel, Minutes: 15, AppliesTo: "all"})
	if err := f.store.InsertConstraint(ctx, &types.Constraint{Kind: types.KindBuffer, Config: cfg}); err != nil {
		t.Fatalf("insert constraint: %v", err)
	}
	if err := f.store.InsertCommitment(ctx, &types.Commitment{
		ClientID:    "client-1",
		TargetHours: 10,
		WindowType:  types.WindowWeekly,
	}); err != nil {
		t.Fatalf("insert commitment: %v", err)
	}

	if err := f.registry.CreateUser(ctx, &types.User{UserID: userID, Email: "u@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, provider := range []string{"google", "microsoft"} {
		if err := f.registry.CreateAccount(ctx, &types.Account{
			UserID:   userID,
			Provider: provider,
			Status:   "active",
		}); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	if err := f.registry.CreateAPIKey(ctx, &types.APIKey{UserID: userID}); err != nil {
		t.Fatalf("create api key: %v", err)
	}

	for _, key := range []string{userID + "/audit/1.json", userID + "/audit/2.json"} {
		if err := f.blobs.Put(ctx, key, []byte(`{"audit":true}`)); err != nil {
			t.Fatalf("put blob: %v", err)
		}
	}
}

func TestWorkflowDeletesEverything(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	const userID = "user-1"
	seedUser(t, f, userID)

	req := &types.DeletionRequest{UserID: userID}
	if err := f.registry.CreateDeletionRequest(ctx, req); err != nil {
		t.Fatalf("create request: %v", err)
	}

	res, err := f.workflow.Run(ctx, req.RequestID, userID)
	if err != nil {
		t.Fatalf("run workflow: %v", err)
	}
	if !res.Completed || len(res.Steps) != 9 {
		t.Fatalf("result: %+v", res)
	}
	for _, step := range res.Steps {
		if !step.OK {
			t.Errorf("step %d (%s) not ok: %s", step.Step, step.Name, step.Error)
		}
	}

	if evs, _ := f.store.ListEventsByAccount(ctx, "acct-1"); len(evs) != 0 {
		t.Errorf("events remain: %+v", evs)
	}
	if rows, _ := f.store.QueryJournal(ctx, types.JournalFilter{}); len(rows) != 0 {
		t.Errorf("journal remains: %+v", rows)
	}
	if rels, _ := f.store.ListRelationships(ctx); len(rels) != 0 {
		t.Errorf("relationships remain: %+v", rels)
	}
	if cs, _ := f.store.ListConstraints(ctx, ""); len(cs) != 0 {
		t.Errorf("constraints remain: %+v", cs)
	}
	if cms, _ := f.store.ListCommitments(ctx); len(cms) != 0 {
		t.Errorf("commitments remain: %+v", cms)
	}
	if _, err := f.registry.GetUser(ctx, userID); err == nil {
		t.Error("user row remains in registry")
	}
	if keys, _ := f.blobs.List(ctx, userID+"/"); len(keys) != 0 {
		t.Errorf("blobs remain: %v", keys)
	}

	sweeps := f.queue.MessagesOfType(queue.TypeDeleteUserMirrors)
	if len(sweeps) != 2 {
		t.Fatalf("provider sweeps: %+v", sweeps)
	}

	cert, summaryJSON, err := f.registry.GetCertificate(ctx, EntityTypeUser, userID)
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if err := Verify(cert, testKey); err != nil {
		t.Errorf("verify stored certificate: %v", err)
	}
	summary, err := ParseSummary(summaryJSON)
	if err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	if summary.EventsDeleted != 2 || summary.D1RowsDeleted != 4 || summary.R2ObjectsDeleted != 2 || summary.ProviderDeletionsEnqueued != 2 {
		t.Errorf("summary: %+v", summary)
	}

	got, err := f.registry.GetDeletionRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != types.DeletionCompleted || got.CompletedAt == nil {
		t.Errorf("request: %+v", got)
	}
}

func TestWorkflowRerunIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	const userID = "user-1"
	seedUser(t, f, userID)

	req := &types.DeletionRequest{UserID: userID}
	if err := f.registry.CreateDeletionRequest(ctx, req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	first, err := f.workflow.Run(ctx, req.RequestID, userID)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := f.workflow.Run(ctx, req.RequestID, userID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Completed {
		t.Fatalf("second run incomplete: %+v", second)
	}
	for _, step := range second.Steps {
		if !step.OK {
			t.Errorf("step %d (%s) not ok on rerun", step.Step, step.Name)
		}
		switch step.Name {
		case "generate_certificate":
			if step.Deleted != 1 {
				t.Errorf("certificate step: %+v", step)
			}
		case "enqueue_provider_deletions", "complete_request":
			// Accounts are gone, so nothing to enqueue; the request row
			// stays completed.
		default:
			if step.Deleted != 0 {
				t.Errorf("rerun step %d (%s) deleted %d rows", step.Step, step.Name, step.Deleted)
			}
		}
	}

	// First certificate wins; the retry's fresh id is discarded.
	stored, _, err := f.registry.GetCertificate(ctx, EntityTypeUser, userID)
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if stored.CertID != first.Certificate.CertID {
		t.Errorf("stored cert %s, want first run's %s", stored.CertID, first.Certificate.CertID)
	}
	if second.Certificate.CertID == first.Certificate.CertID {
		t.Error("rerun reused the certificate id")
	}
}

func TestCertificateVerification(t *testing.T) {
	deletedAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	summary := types.DeletionSummary{EventsDeleted: 2, MirrorsDeleted: 2, JournalEntriesDeleted: 2}
	cert, err := NewCertificate(EntityTypeUser, "user-1", deletedAt, summary, testKey)
	if err != nil {
		t.Fatalf("new certificate: %v", err)
	}
	if len(cert.ProofHash) != 64 || len(cert.Signature) != 64 {
		t.Fatalf("hash lengths: %q %q", cert.ProofHash, cert.Signature)
	}
	if err := Verify(cert, testKey); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := *cert
	tampered.Summary.EventsDeleted = 3
	if err := Verify(&tampered, testKey); err == nil {
		t.Error("tampered summary verified")
	}

	if err := Verify(cert, []byte("wrong-key")); err == nil {
		t.Error("wrong key verified")
	}

	renamed := *cert
	renamed.EntityID = "user-2"
	if err := Verify(&renamed, testKey); err == nil {
		t.Error("tampered entity id verified")
	}
}

func TestCertificateDeterministicProof(t *testing.T) {
	deletedAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	summary := types.DeletionSummary{EventsDeleted: 1}
	a, err := ProofHash(EntityTypeUser, "user-1", deletedAt, summary)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ProofHash(EntityTypeUser, "user-1", deletedAt, summary)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("proof hash not deterministic: %s vs %s", a, b)
	}
}
