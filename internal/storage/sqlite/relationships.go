package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

const relationshipColumns = `id, participant_hash, display_name, category, closeness_weight,
	city, timezone, interaction_frequency_target, last_interaction_ts, created_at, updated_at`

// InsertRelationship creates a relationship row. Duplicate participant
// hashes surface as ErrConflict.
func (o ops) InsertRelationship(ctx context.Context, r *types.Relationship) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParticipantHash, r.DisplayName, string(r.Category), r.ClosenessWeight,
		r.City, r.Timezone, r.InteractionFrequencyTarget, fmtTSPtr(r.LastInteractionTS),
		fmtTS(r.CreatedAt), fmtTS(r.UpdatedAt),
	)
	return wrapDBError("insert relationship", err)
}

// UpdateRelationship rewrites an existing relationship row.
func (o ops) UpdateRelationship(ctx context.Context, r *types.Relationship) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := o.q.ExecContext(ctx, `
		UPDATE relationships
		SET display_name = ?, category = ?, closeness_weight = ?, city = ?, timezone = ?,
		    interaction_frequency_target = ?, last_interaction_ts = ?, updated_at = ?
		WHERE id = ?`,
		r.DisplayName, string(r.Category), r.ClosenessWeight, r.City, r.Timezone,
		r.InteractionFrequencyTarget, fmtTSPtr(r.LastInteractionTS), fmtTS(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return wrapDBError("update relationship", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update relationship %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// DeleteRelationship removes a relationship; ledger entries, milestones,
// and drift alerts cascade via foreign keys.
func (o ops) DeleteRelationship(ctx context.Context, id string) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete relationship", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete relationship %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRelationship reads one relationship by id.
func (o ops) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get relationship %s", id), err)
	}
	return r, nil
}

// GetRelationshipByHash reads one relationship by participant hash.
func (o ops) GetRelationshipByHash(ctx context.Context, participantHash string) (*types.Relationship, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE participant_hash = ?`, participantHash)
	r, err := scanRelationship(row)
	if err != nil {
		return nil, wrapDBError("get relationship by hash", err)
	}
	return r, nil
}

// ListRelationships lists every relationship, oldest first.
func (o ops) ListRelationships(ctx context.Context) ([]*types.Relationship, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT `+relationshipColumns+` FROM relationships ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapDBError("list relationships", err)
	}
	defer rows.Close()

	var rels []*types.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, wrapDBError("list relationships", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// UpdateLastInteraction sets last_interaction_ts for every relationship
// matching the given participant hashes, returning the number updated.
// Used on ingest (event start time) and for ATTENDED ledger outcomes.
func (o ops) UpdateLastInteraction(ctx context.Context, participantHashes []string, ts time.Time) (int, error) {
	if len(participantHashes) == 0 {
		return 0, nil
	}
	query := `UPDATE relationships SET last_interaction_ts = ?, updated_at = ?
		WHERE participant_hash IN (?` + strings.Repeat(",?", len(participantHashes)-1) + `)`
	args := []any{fmtTS(ts), fmtTS(time.Now())}
	for _, h := range participantHashes {
		args = append(args, h)
	}
	res, err := o.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapDBError("update last interaction", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("update last interaction", err)
}

// InsertLedgerEntry appends one interaction outcome.
func (o ops) InsertLedgerEntry(ctx context.Context, e *types.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO interaction_ledger (id, participant_hash, outcome, weight, canonical_event_id, note, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ParticipantHash, string(e.Outcome), e.Weight, e.CanonicalEventID, e.Note, fmtTS(e.TS),
	)
	return wrapDBError("insert ledger entry", err)
}

// ListLedgerEntries lists the outcome history of one participant, oldest
// first.
func (o ops) ListLedgerEntries(ctx context.Context, participantHash string) ([]*types.LedgerEntry, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, participant_hash, outcome, weight, canonical_event_id, note, ts
		FROM interaction_ledger WHERE participant_hash = ? ORDER BY ts, id`, participantHash)
	if err != nil {
		return nil, wrapDBError("list ledger entries", err)
	}
	defer rows.Close()

	var entries []*types.LedgerEntry
	for rows.Next() {
		var (
			e           types.LedgerEntry
			outcome, ts string
		)
		if err := rows.Scan(&e.ID, &e.ParticipantHash, &outcome, &e.Weight, &e.CanonicalEventID, &e.Note, &ts); err != nil {
			return nil, wrapDBError("list ledger entries", err)
		}
		e.Outcome = types.Outcome(outcome)
		if e.TS, err = parseTS(ts); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteRelationshipData removes every relationship-graph row: ledger,
// milestones, drift alerts, then relationships (deletion workflow step 4).
// Returns the total row count removed.
func (o ops) DeleteRelationshipData(ctx context.Context) (int, error) {
	total := 0
	for _, table := range []string{"interaction_ledger", "milestones", "drift_alerts", "relationships"} {
		res, err := o.q.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return total, wrapDBError("delete relationship data: "+table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, wrapDBError("delete relationship data: "+table, err)
		}
		total += int(n)
	}
	return total, nil
}

func scanRelationship(row rowScanner) (*types.Relationship, error) {
	var (
		r                types.Relationship
		category         string
		lastTS           sql.NullString
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.ParticipantHash, &r.DisplayName, &category, &r.ClosenessWeight,
		&r.City, &r.Timezone, &r.InteractionFrequencyTarget, &lastTS, &created, &updated); err != nil {
		return nil, err
	}
	r.Category = types.RelationshipCategory(category)
	var err error
	if r.LastInteractionTS, err = parseTSNull(lastTS); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &r, nil
}
