// Package sqlite implements the actor storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/RamXX/tminus-sub002/internal/storage"
)

// Store implements storage.Store over an embedded SQLite database.
// One Store holds one user's calendar graph.
type Store struct {
	ops
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

var memdbSeq atomic.Int64

// setupWASMCache configures WASM compilation caching so the SQLite runtime
// is compiled once per machine instead of once per process. Falls back to
// an in-memory cache if the cache directory cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "tminus", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (or creates) an actor store at path. ":memory:" opens a
// process-private in-memory database, used by tests.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if path == ":memory:" {
		// Shared cache so every pooled connection sees the same data. The
		// name is unique per open so stores never alias each other.
		name := fmt.Sprintf("memdb%d", memdbSeq.Add(1))
		connStr = "file:" + name + "?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are isolated per connection without this.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers; the actor
		// serializes writes, so a small pool is enough.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{ops: ops{q: db}, db: db, dbPath: path}, nil
}

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the raw database handle, for diagnostics only.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, retrying on
// SQLITE_BUSY with linear backoff.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "busy") && !strings.Contains(err.Error(), "locked") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * delay):
		}
	}
	return lastErr
}

// RunInTransaction executes fn within a single BEGIN IMMEDIATE transaction.
// Commit on nil return; rollback on error or panic.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is done.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	tx := &txStore{ops: ops{q: conn}}
	if err := fn(tx); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// txStore implements storage.Tx over a dedicated connection with an open
// transaction.
type txStore struct {
	ops
}

var _ storage.Tx = (*txStore)(nil)

// queryer abstracts *sql.DB and *sql.Conn so every row-level operation is
// written once and runs both standalone and inside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops carries the shared row-level operation implementations.
type ops struct {
	q queryer
}

// isNotFound checks if an error is or wraps ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
