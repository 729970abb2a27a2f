package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common store conditions.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (duplicate
	// origin pair, participant hash, or client id).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInterval indicates start_ts > end_ts.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrStructuralConstraint indicates a foreign key violation.
	ErrStructuralConstraint = errors.New("structural constraint")

	// ErrUnknownOrigin indicates a delta referenced an origin event that
	// does not exist in this store.
	ErrUnknownOrigin = errors.New("unknown origin")
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound and constraint failures to their sentinels.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case IsUniqueConstraintError(err):
		return fmt.Errorf("%s: %v: %w", op, err, ErrConflict)
	case IsForeignKeyConstraintError(err):
		return fmt.Errorf("%s: %v: %w", op, err, ErrStructuralConstraint)
	case IsCheckConstraintError(err):
		return fmt.Errorf("%s: %v: %w", op, err, ErrInvalidInterval)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueConstraintError checks if an error is a UNIQUE constraint violation.
func IsUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyConstraintError checks if an error is a FOREIGN KEY violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "FOREIGN KEY constraint failed") ||
		strings.Contains(s, "foreign key constraint failed")
}

// IsCheckConstraintError checks if an error is a CHECK constraint violation.
func IsCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
