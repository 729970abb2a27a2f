// Package registry implements the global control-plane store: users, their
// provider accounts and API keys, and the deletion requests and certificates
// that outlive per-user actor stores.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// Sentinel errors, matching the actor store's conventions.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    account_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    provider_subject TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

CREATE TABLE IF NOT EXISTS api_keys (
    key_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    key_hash TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

-- Deletion requests carry no FK: the request row outlives the user.
CREATE TABLE IF NOT EXISTS deletion_requests (
    request_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    requested_at TEXT NOT NULL,
    scheduled_at TEXT,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_deletion_requests_user ON deletion_requests(user_id);

-- Certificates are append-once per entity; re-running a completed deletion
-- must not mint a second one.
CREATE TABLE IF NOT EXISTS deletion_certificates (
    certificate_id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    deleted_at TEXT NOT NULL,
    summary_json TEXT NOT NULL,
    proof_hash TEXT NOT NULL,
    signature TEXT NOT NULL,
    UNIQUE (entity_type, entity_id)
);
`

// Registry is the global store. Unlike actor stores there is exactly one
// per deployment.
type Registry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path. ":memory:" opens
// a private in-memory database, used by tests.
func Open(ctx context.Context, path string) (*Registry, error) {
	var connStr string
	if path == ":memory:" {
		connStr = "file:registry?mode=memory&_pragma=foreign_keys(ON)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// CreateUser inserts a user row.
func (r *Registry) CreateUser(ctx context.Context, u *types.User) error {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, org_id, email, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.UserID, u.OrgID, u.Email, u.DisplayName, fmtTS(u.CreatedAt))
	return wrapErr("create user", err)
}

// GetUser reads one user.
func (r *Registry) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var (
		u       types.User
		created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, org_id, email, display_name, created_at FROM users WHERE user_id = ?`, userID).
		Scan(&u.UserID, &u.OrgID, &u.Email, &u.DisplayName, &created)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get user %s", userID), err)
	}
	if u.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateAccount binds a provider account to a user.
func (r *Registry) CreateAccount(ctx context.Context, a *types.Account) error {
	if a.AccountID == "" {
		a.AccountID = uuid.NewString()
	}
	if a.UserID == "" || a.Provider == "" {
		return fmt.Errorf("user_id and provider are required")
	}
	if a.Status == "" {
		a.Status = "active"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, user_id, provider, provider_subject, email, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.AccountID, a.UserID, a.Provider, a.ProviderSubject, a.Email, a.Status, fmtTS(a.CreatedAt))
	return wrapErr("create account", err)
}

// ListAccounts lists a user's provider accounts, oldest first.
func (r *Registry) ListAccounts(ctx context.Context, userID string) ([]*types.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, user_id, provider, provider_subject, email, status, created_at
		FROM accounts WHERE user_id = ? ORDER BY created_at, account_id`, userID)
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		var (
			a       types.Account
			created string
		)
		if err := rows.Scan(&a.AccountID, &a.UserID, &a.Provider, &a.ProviderSubject, &a.Email, &a.Status, &created); err != nil {
			return nil, wrapErr("list accounts", err)
		}
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// CreateAPIKey inserts an API key row for a user.
func (r *Registry) CreateAPIKey(ctx context.Context, k *types.APIKey) error {
	if k.KeyID == "" {
		k.KeyID = uuid.NewString()
	}
	if k.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_id, user_id, key_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		k.KeyID, k.UserID, k.KeyHash, fmtTS(k.CreatedAt))
	return wrapErr("create api key", err)
}

// DeleteUserRows removes the user's registry rows in FK-safe order:
// accounts and api_keys first, then the user. Returns the total count.
// A second run over an already-deleted user is a zero-count success.
func (r *Registry) DeleteUserRows(ctx context.Context, userID string) (int, error) {
	total := 0
	for _, q := range []string{
		`DELETE FROM accounts WHERE user_id = ?`,
		`DELETE FROM api_keys WHERE user_id = ?`,
		`DELETE FROM users WHERE user_id = ?`,
	} {
		res, err := r.db.ExecContext(ctx, q, userID)
		if err != nil {
			return total, wrapErr("delete user rows", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, wrapErr("delete user rows", err)
		}
		total += int(n)
	}
	return total, nil
}

// CreateDeletionRequest records an erasure request.
func (r *Registry) CreateDeletionRequest(ctx context.Context, req *types.DeletionRequest) error {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if req.Status == "" {
		req.Status = types.DeletionPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deletion_requests (request_id, user_id, status, requested_at, scheduled_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.RequestID, req.UserID, string(req.Status), fmtTS(req.RequestedAt),
		fmtTSPtr(req.ScheduledAt), fmtTSPtr(req.CompletedAt))
	return wrapErr("create deletion request", err)
}

// GetDeletionRequest reads one deletion request.
func (r *Registry) GetDeletionRequest(ctx context.Context, requestID string) (*types.DeletionRequest, error) {
	var (
		req                  types.DeletionRequest
		status, requested    string
		scheduled, completed sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT request_id, user_id, status, requested_at, scheduled_at, completed_at
		FROM deletion_requests WHERE request_id = ?`, requestID).
		Scan(&req.RequestID, &req.UserID, &status, &requested, &scheduled, &completed)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get deletion request %s", requestID), err)
	}
	req.Status = types.DeletionStatus(status)
	if req.RequestedAt, err = parseTS(requested); err != nil {
		return nil, err
	}
	if req.ScheduledAt, err = parseTSNull(scheduled); err != nil {
		return nil, err
	}
	if req.CompletedAt, err = parseTSNull(completed); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateDeletionStatus advances a deletion request's lifecycle. Completed
// and failed transitions stamp completed_at.
func (r *Registry) UpdateDeletionStatus(ctx context.Context, requestID string, status types.DeletionStatus) error {
	var completedAt any
	if status == types.DeletionCompleted || status == types.DeletionFailed {
		completedAt = fmtTS(time.Now())
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE deletion_requests SET status = ?, completed_at = COALESCE(?, completed_at)
		WHERE request_id = ?`,
		string(status), completedAt, requestID)
	if err != nil {
		return wrapErr("update deletion status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update deletion status %s: %w", requestID, ErrNotFound)
	}
	return nil
}

// SaveCertificate stores a deletion certificate. The first certificate for
// an entity wins; re-running a completed deletion keeps the original.
func (r *Registry) SaveCertificate(ctx context.Context, c *types.DeletionCertificate, summaryJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deletion_certificates (certificate_id, entity_type, entity_id, deleted_at, summary_json, proof_hash, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO NOTHING`,
		c.CertID, c.EntityType, c.EntityID, fmtTS(c.DeletedAt), summaryJSON, c.ProofHash, c.Signature)
	return wrapErr("save certificate", err)
}

// GetCertificate reads the certificate for an entity, along with its stored
// summary serialization.
func (r *Registry) GetCertificate(ctx context.Context, entityType, entityID string) (*types.DeletionCertificate, string, error) {
	var (
		c           types.DeletionCertificate
		deleted     string
		summaryJSON string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT certificate_id, entity_type, entity_id, deleted_at, summary_json, proof_hash, signature
		FROM deletion_certificates WHERE entity_type = ? AND entity_id = ?`, entityType, entityID).
		Scan(&c.CertID, &c.EntityType, &c.EntityID, &deleted, &summaryJSON, &c.ProofHash, &c.Signature)
	if err != nil {
		return nil, "", wrapErr("get certificate", err)
	}
	if c.DeletedAt, err = parseTS(deleted); err != nil {
		return nil, "", err
	}
	return &c, summaryJSON, nil
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fmtTS(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func fmtTSPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTS(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

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
