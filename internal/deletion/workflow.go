// Package deletion implements the cascading GDPR erasure workflow: nine
// ordered, individually idempotent steps that empty a user's actor store,
// registry rows, and audit blobs, enqueue provider-side sweeps, and leave a
// signed certificate behind. Re-running the workflow on an already-deleted
// user succeeds with zero counts everywhere except the certificate step.
package deletion

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/RamXX/tminus-sub002/internal/blob"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/registry"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

// EntityTypeUser is the certificate entity type for whole-user deletions.
const EntityTypeUser = "user"

const stepRetries = 3

// Workflow erases one user across the actor store, registry, blob store,
// and providers.
type Workflow struct {
	store     storage.Store
	registry  *registry.Registry
	blobs     blob.Store
	queue     queue.Queue
	masterKey []byte
	now       func() time.Time
}

// New creates a deletion workflow. masterKey signs certificates.
func New(store storage.Store, reg *registry.Registry, blobs blob.Store, q queue.Queue, masterKey []byte) *Workflow {
	return &Workflow{
		store:     store,
		registry:  reg,
		blobs:     blobs,
		queue:     q,
		masterKey: masterKey,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of one workflow run.
type Result struct {
	RequestID   string                     `json:"request_id"`
	UserID      string                     `json:"user_id"`
	Steps       []types.StepResult         `json:"steps"`
	Certificate *types.DeletionCertificate `json:"certificate,omitempty"`
	Completed   bool                       `json:"completed"`
}

// Run executes the nine steps in order. Each step retries transient
// failures with exponential backoff before the workflow gives up; a failed
// step marks the request failed and stops. Accounts are prefetched before
// the registry rows are destroyed so step 7 can still enqueue provider
// sweeps.
func (w *Workflow) Run(ctx context.Context, requestID, userID string) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	result := &Result{RequestID: requestID, UserID: userID}

	if requestID != "" {
		if err := w.registry.UpdateDeletionStatus(ctx, requestID, types.DeletionProcessing); err != nil {
			return nil, err
		}
	}

	accounts, err := w.registry.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("prefetch accounts: %w", err)
	}

	var summary types.DeletionSummary
	steps := []struct {
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{"delete_events", func(ctx context.Context) (int, error) {
			n, err := w.store.DeleteAllEvents(ctx)
			summary.EventsDeleted = n
			return n, err
		}},
		{"delete_mirrors", func(ctx context.Context) (int, error) {
			n, err := w.store.DeleteAllMirrors(ctx)
			summary.MirrorsDeleted = n
			return n, err
		}},
		{"delete_journal", func(ctx context.Context) (int, error) {
			n, err := w.store.DeleteAllJournal(ctx)
			summary.JournalEntriesDeleted = n
			return n, err
		}},
		{"delete_relationship_data", func(ctx context.Context) (int, error) {
			n, err := w.eraseActorGraph(ctx)
			summary.RelationshipRecordsDeleted = n
			return n, err
		}},
		{"delete_registry_rows", func(ctx context.Context) (int, error) {
			n, err := w.registry.DeleteUserRows(ctx, userID)
			summary.D1RowsDeleted = n
			return n, err
		}},
		{"delete_blobs", func(ctx context.Context) (int, error) {
			n, err := w.blobs.DeletePrefix(ctx, userID+"/")
			summary.R2ObjectsDeleted = n
			return n, err
		}},
		{"enqueue_provider_deletions", func(ctx context.Context) (int, error) {
			n, err := w.enqueueSweeps(ctx, userID, accounts)
			summary.ProviderDeletionsEnqueued = n
			return n, err
		}},
		{"generate_certificate", func(ctx context.Context) (int, error) {
			cert, err := w.generateCertificate(ctx, userID, summary)
			if err != nil {
				return 0, err
			}
			result.Certificate = cert
			return 1, nil
		}},
		{"complete_request", func(ctx context.Context) (int, error) {
			if requestID == "" {
				return 0, nil
			}
			return 1, w.registry.UpdateDeletionStatus(ctx, requestID, types.DeletionCompleted)
		}},
	}

	for i, step := range steps {
		deleted, err := runStep(ctx, step.run)
		sr := types.StepResult{Step: i + 1, Name: step.name, Deleted: deleted, OK: err == nil}
		if err != nil {
			sr.Error = err.Error()
			result.Steps = append(result.Steps, sr)
			if requestID != "" {
				if serr := w.registry.UpdateDeletionStatus(ctx, requestID, types.DeletionFailed); serr != nil {
					return result, fmt.Errorf("step %d (%s): %v; mark failed: %w", i+1, step.name, err, serr)
				}
			}
			return result, fmt.Errorf("step %d (%s): %w", i+1, step.name, err)
		}
		result.Steps = append(result.Steps, sr)
	}
	result.Completed = true
	return result, nil
}

func runStep(ctx context.Context, fn func(ctx context.Context) (int, error)) (int, error) {
	var deleted int
	op := func() error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), stepRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// eraseActorGraph sweeps the remaining per-user tables: the relationship
// graph, constraints, and commitments. Derived events and allocations are
// already gone after the event step.
func (w *Workflow) eraseActorGraph(ctx context.Context) (int, error) {
	total := 0
	n, err := w.store.DeleteRelationshipData(ctx)
	if err != nil {
		return total, err
	}
	total += n
	if n, err = w.store.DeleteAllConstraints(ctx); err != nil {
		return total, err
	}
	total += n
	if n, err = w.store.DeleteAllCommitments(ctx); err != nil {
		return total, err
	}
	return total + n, nil
}

// enqueueSweeps publishes one DELETE_USER_MIRRORS per prefetched account.
// Consumers deduplicate, so a retried run may enqueue duplicates safely.
func (w *Workflow) enqueueSweeps(ctx context.Context, userID string, accounts []*types.Account) (int, error) {
	for _, a := range accounts {
		msg := &queue.Message{
			Type: queue.TypeDeleteUserMirrors,
			DeleteUserMirrors: &queue.DeleteUserMirrors{
				UserID:    userID,
				AccountID: a.AccountID,
				Provider:  a.Provider,
			},
		}
		if err := w.queue.Publish(ctx, msg); err != nil {
			return 0, err
		}
	}
	return len(accounts), nil
}

// generateCertificate signs and stores the deletion certificate. Storage is
// upsert-ignore: the first certificate for an entity wins, so a retried run
// mints a new id but never replaces the original.
func (w *Workflow) generateCertificate(ctx context.Context, userID string, summary types.DeletionSummary) (*types.DeletionCertificate, error) {
	cert, err := NewCertificate(EntityTypeUser, userID, w.now(), summary, w.masterKey)
	if err != nil {
		return nil, err
	}
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return nil, err
	}
	if err := w.registry.SaveCertificate(ctx, cert, summaryJSON); err != nil {
		return nil, err
	}
	return cert, nil
}
