package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
)

const eventColumns = `id, origin_account_id, origin_event_id, title, description, location,
	start_ts, end_ts, timezone, status, visibility, transparency, all_day,
	recurrence_rule, source, version, constraint_id, authority_markers,
	participant_hashes, created_at, updated_at`

// InsertEvent inserts a canonical event row.
func (o ops) InsertEvent(ctx context.Context, ev *types.CanonicalEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now
	if ev.Version == 0 {
		ev.Version = 1
	}

	var constraintID any
	if ev.ConstraintID != "" {
		constraintID = ev.ConstraintID
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO canonical_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OriginAccountID, ev.OriginEventID, ev.Title, ev.Description, ev.Location,
		fmtTS(ev.StartTS), fmtTS(ev.EndTS), ev.Timezone, string(ev.Status), ev.Visibility,
		string(ev.Transparency), boolToInt(ev.AllDay), ev.RecurrenceRule, string(ev.Source),
		ev.Version, constraintID, marshalJSON(ev.AuthorityMarkers, "{}"),
		marshalJSON(ev.ParticipantHashes, "[]"), fmtTS(ev.CreatedAt), fmtTS(ev.UpdatedAt),
	)
	return wrapDBError("insert event", err)
}

// UpdateEvent rewrites a canonical event row. Callers bump Version; the
// store enforces that it strictly increases.
func (o ops) UpdateEvent(ctx context.Context, ev *types.CanonicalEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	ev.UpdatedAt = time.Now().UTC()

	var constraintID any
	if ev.ConstraintID != "" {
		constraintID = ev.ConstraintID
	}

	res, err := o.q.ExecContext(ctx, `
		UPDATE canonical_events
		SET title = ?, description = ?, location = ?, start_ts = ?, end_ts = ?,
		    timezone = ?, status = ?, visibility = ?, transparency = ?, all_day = ?,
		    recurrence_rule = ?, source = ?, version = ?, constraint_id = ?,
		    authority_markers = ?, participant_hashes = ?, updated_at = ?
		WHERE id = ? AND version < ?`,
		ev.Title, ev.Description, ev.Location, fmtTS(ev.StartTS), fmtTS(ev.EndTS),
		ev.Timezone, string(ev.Status), ev.Visibility, string(ev.Transparency),
		boolToInt(ev.AllDay), ev.RecurrenceRule, string(ev.Source), ev.Version,
		constraintID, marshalJSON(ev.AuthorityMarkers, "{}"),
		marshalJSON(ev.ParticipantHashes, "[]"), fmtTS(ev.UpdatedAt),
		ev.ID, ev.Version,
	)
	if err != nil {
		return wrapDBError("update event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update event", err)
	}
	if n == 0 {
		// Either the row is missing or the version did not advance.
		if _, gerr := o.GetEvent(ctx, ev.ID); gerr != nil {
			return gerr
		}
		return fmt.Errorf("update event %s: stale version %d: %w", ev.ID, ev.Version, ErrConflict)
	}
	return nil
}

// DeleteEvent removes an event row (mirrors cascade).
func (o ops) DeleteEvent(ctx context.Context, id string) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM canonical_events WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete event %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetEvent reads one event by canonical id.
func (o ops) GetEvent(ctx context.Context, id string) (*types.CanonicalEvent, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM canonical_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get event %s", id), err)
	}
	return ev, nil
}

// GetEventByOrigin reads one event by its (origin_account_id,
// origin_event_id) pair.
func (o ops) GetEventByOrigin(ctx context.Context, accountID, originEventID string) (*types.CanonicalEvent, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM canonical_events WHERE origin_account_id = ? AND origin_event_id = ?`,
		accountID, originEventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get event %s/%s", accountID, originEventID), err)
	}
	return ev, nil
}

// ListEvents lists events matching the filter, ordered by start_ts.
func (o ops) ListEvents(ctx context.Context, filter storage.EventFilter) ([]*types.CanonicalEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountID != "" {
		where = append(where, "origin_account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.ConstraintID != "" {
		where = append(where, "constraint_id = ?")
		args = append(args, filter.ConstraintID)
	}
	if filter.Since != nil {
		where = append(where, "end_ts > ?")
		args = append(args, fmtTS(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "start_ts < ?")
		args = append(args, fmtTS(*filter.Until))
	}

	query := `SELECT ` + eventColumns + ` FROM canonical_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_ts, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsOverlapping lists non-cancelled events overlapping [start, end),
// optionally filtered to the given origin accounts.
func (o ops) ListEventsOverlapping(ctx context.Context, start, end time.Time, accountIDs []string) ([]*types.CanonicalEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM canonical_events
		WHERE status != 'cancelled' AND start_ts < ? AND end_ts > ?`
	args := []any{fmtTS(end), fmtTS(start)}
	if len(accountIDs) > 0 {
		query += " AND origin_account_id IN (?" + strings.Repeat(",?", len(accountIDs)-1) + ")"
		for _, id := range accountIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY start_ts, id"

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list overlapping events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByAccount lists every event of one origin account.
func (o ops) ListEventsByAccount(ctx context.Context, accountID string) ([]*types.CanonicalEvent, error) {
	return o.ListEvents(ctx, storage.EventFilter{AccountID: accountID})
}

// EventsByConstraint lists the derived events owned by a constraint.
func (o ops) EventsByConstraint(ctx context.Context, constraintID string) ([]*types.CanonicalEvent, error) {
	return o.ListEvents(ctx, storage.EventFilter{ConstraintID: constraintID})
}

// DeleteAllEvents removes every event row (deletion workflow step 1).
func (o ops) DeleteAllEvents(ctx context.Context) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM canonical_events`)
	if err != nil {
		return 0, wrapDBError("delete all events", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("delete all events", err)
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*types.CanonicalEvent, error) {
	var (
		ev                      types.CanonicalEvent
		startTS, endTS          string
		createdAt, updatedAt    string
		allDay                  int
		constraintID            sql.NullString
		status, transparency    string
		source, markers, hashes string
	)
	err := row.Scan(
		&ev.ID, &ev.OriginAccountID, &ev.OriginEventID, &ev.Title, &ev.Description, &ev.Location,
		&startTS, &endTS, &ev.Timezone, &status, &ev.Visibility, &transparency, &allDay,
		&ev.RecurrenceRule, &source, &ev.Version, &constraintID, &markers, &hashes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ev.StartTS, err = parseTS(startTS); err != nil {
		return nil, err
	}
	if ev.EndTS, err = parseTS(endTS); err != nil {
		return nil, err
	}
	if ev.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	ev.Status = types.EventStatus(status)
	ev.Transparency = types.Transparency(transparency)
	ev.Source = types.EventSource(source)
	ev.AllDay = allDay != 0
	if constraintID.Valid {
		ev.ConstraintID = constraintID.String
	}
	if err := json.Unmarshal([]byte(markers), &ev.AuthorityMarkers); err != nil {
		return nil, fmt.Errorf("bad authority_markers: %w", err)
	}
	if err := json.Unmarshal([]byte(hashes), &ev.ParticipantHashes); err != nil {
		return nil, fmt.Errorf("bad participant_hashes: %w", err)
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*types.CanonicalEvent, error) {
	var events []*types.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
