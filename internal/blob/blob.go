// Package blob abstracts the object store holding raw sync payloads and
// attachment snapshots. Objects are keyed "<user_id>/<name>", so erasing a
// user is a prefix delete.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a minimal object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// List returns every key under prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every object under prefix and returns the count.
	// Deleting an empty prefix is a zero-count success.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
