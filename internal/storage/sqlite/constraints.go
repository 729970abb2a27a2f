package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// InsertConstraint persists a validated constraint row.
func (o ops) InsertConstraint(ctx context.Context, c *types.Constraint) error {
	if err := c.ValidateConfig(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO constraints (id, kind, config_json, active_from, active_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), string(c.Config), fmtTSPtr(c.ActiveFrom), fmtTSPtr(c.ActiveTo),
		fmtTS(c.CreatedAt), fmtTS(c.UpdatedAt),
	)
	return wrapDBError("insert constraint", err)
}

// UpdateConstraint rewrites config and window of an existing constraint.
func (o ops) UpdateConstraint(ctx context.Context, c *types.Constraint) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := o.q.ExecContext(ctx, `
		UPDATE constraints SET kind = ?, config_json = ?, active_from = ?, active_to = ?, updated_at = ?
		WHERE id = ?`,
		string(c.Kind), string(c.Config), fmtTSPtr(c.ActiveFrom), fmtTSPtr(c.ActiveTo),
		fmtTS(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return wrapDBError("update constraint", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update constraint %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// DeleteConstraint removes a constraint row. Derived events must already
// be cleaned up by the caller; the FK from canonical_events enforces it.
func (o ops) DeleteConstraint(ctx context.Context, id string) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM constraints WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete constraint", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete constraint %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetConstraint reads one constraint by id.
func (o ops) GetConstraint(ctx context.Context, id string) (*types.Constraint, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, kind, config_json, active_from, active_to, created_at, updated_at FROM constraints WHERE id = ?`, id)
	c, err := scanConstraint(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get constraint %s", id), err)
	}
	return c, nil
}

// ListConstraints lists constraints, optionally filtered by kind.
func (o ops) ListConstraints(ctx context.Context, kind types.ConstraintKind) ([]*types.Constraint, error) {
	query := `SELECT id, kind, config_json, active_from, active_to, created_at, updated_at FROM constraints`
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at, id"

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list constraints", err)
	}
	defer rows.Close()

	var constraints []*types.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, wrapDBError("list constraints", err)
		}
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

func scanConstraint(row rowScanner) (*types.Constraint, error) {
	var (
		c                types.Constraint
		kind, config     string
		from, to         sql.NullString
		created, updated string
	)
	if err := row.Scan(&c.ID, &kind, &config, &from, &to, &created, &updated); err != nil {
		return nil, err
	}
	c.Kind = types.ConstraintKind(kind)
	c.Config = []byte(config)
	var err error
	if c.ActiveFrom, err = parseTSNull(from); err != nil {
		return nil, err
	}
	if c.ActiveTo, err = parseTSNull(to); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteAllConstraints erases the constraints table, used by the erasure
// cascade after derived events are already gone.
func (o ops) DeleteAllConstraints(ctx context.Context) (int, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM constraints`)
	if err != nil {
		return 0, wrapDBError("delete all constraints", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("delete all constraints", err)
	}
	return int(n), nil
}
