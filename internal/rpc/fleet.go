package rpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/RamXX/tminus-sub002/internal/engine"
	"github.com/RamXX/tminus-sub002/internal/queue"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
)

// userIDPattern keeps user ids safe to use as filenames.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Fleet addresses one single-threaded actor per user_id. Each actor owns
// a private sqlite store under dataDir and is opened lazily on first use.
// The per-actor mutex is the serialization point; the flock guards the
// store against a second process opening the same user.
type Fleet struct {
	dataDir string
	queue   queue.Queue
	clock   func() time.Time

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
}

type actor struct {
	mu     sync.Mutex
	engine *engine.Engine
	store  *sqlite.Store
	lock   *flock.Flock
}

// FleetOption configures a Fleet.
type FleetOption func(*Fleet)

// WithClock overrides each actor engine's time source.
func WithClock(now func() time.Time) FleetOption {
	return func(f *Fleet) { f.clock = now }
}

// NewFleet creates a fleet rooted at dataDir. The directory is created
// if missing.
func NewFleet(dataDir string, q queue.Queue, opts ...FleetOption) (*Fleet, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f := &Fleet{
		dataDir: dataDir,
		queue:   q,
		actors:  make(map[string]*actor),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Do runs fn against the engine for userID, holding the actor's mutex
// for the duration. All operations for one user serialize here.
func (f *Fleet) Do(ctx context.Context, userID string, fn func(*engine.Engine) error) error {
	a, err := f.actor(ctx, userID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.engine)
}

func (f *Fleet) actor(ctx context.Context, userID string) (*actor, error) {
	if !userIDPattern.MatchString(userID) {
		return nil, fmt.Errorf("invalid user_id %q", userID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("fleet is closed")
	}
	if a, ok := f.actors[userID]; ok {
		return a, nil
	}

	lock := flock.New(filepath.Join(f.dataDir, userID+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock actor %s: %w", userID, err)
	}
	if !ok {
		return nil, fmt.Errorf("actor %s is locked by another process", userID)
	}

	store, err := sqlite.New(ctx, filepath.Join(f.dataDir, userID+".db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open actor store %s: %w", userID, err)
	}

	var opts []engine.Option
	if f.clock != nil {
		opts = append(opts, engine.WithClock(f.clock))
	}
	a := &actor{
		engine: engine.New(store, f.queue, opts...),
		store:  store,
		lock:   lock,
	}
	f.actors[userID] = a
	return a, nil
}

// Close shuts every actor down, waiting for in-flight operations.
func (f *Fleet) Close() error {
	f.mu.Lock()
	actors := f.actors
	f.actors = make(map[string]*actor)
	f.closed = true
	f.mu.Unlock()

	var firstErr error
	for id, a := range actors {
		a.mu.Lock()
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close actor %s: %w", id, err)
		}
		_ = a.lock.Unlock()
		a.mu.Unlock()
	}
	return firstErr
}
