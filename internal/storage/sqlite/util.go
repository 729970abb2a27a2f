package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// fmtTS renders a timestamp in the stable storage format (RFC3339 UTC).
func fmtTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// fmtTSPtr renders an optional timestamp; nil maps to SQL NULL.
func fmtTSPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTS(*t)
}

// parseTS parses a stored timestamp.
func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// parseTSNull parses a nullable stored timestamp.
func parseTSNull(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalJSON renders v as the stored JSON text, with a sane fallback for
// nil maps and slices.
func marshalJSON(v any, empty string) string {
	if v == nil {
		return empty
	}
	b, err := json.Marshal(v)
	if err != nil {
		return empty
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
