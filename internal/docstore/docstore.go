// Package docstore is the document-store collaborator: schemaless JSON
// documents addressed by (collection, key), with field-level merge writes and
// single-field equality queries.
//
// Implementations:
//   - MemoryStore  : in-process, for tests and development
//   - PostgresStore: jsonb rows via pgx
//   - BadgerStore  : embedded key-value store
//   - SQLiteStore  : embedded SQL file via modernc.org/sqlite
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no document exists for the key.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by a create-only Set when the key is taken.
	ErrExists = errors.New("document already exists")
)

// Doc is a decoded JSON document. Values are JSON-native Go types:
// map[string]any, []any, string, float64, bool and nil.
type Doc = map[string]any

// SetOptions controls Set behaviour.
type SetOptions struct {
	// Merge deep-merges the value into an existing document instead of
	// replacing it. Nested objects merge recursively; arrays are replaced.
	Merge bool
	// IfAbsent makes the write create-only: when a document already exists
	// at the key nothing is written and Set returns ErrExists. It takes
	// precedence over Merge.
	IfAbsent bool
}

// Snapshot is one query result.
type Snapshot struct {
	Key  string
	Data Doc
}

// Store is implemented by every backend.
type Store interface {
	// Get returns the document at key or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Doc, error)

	// Set writes value at key, creating the document if needed.
	Set(ctx context.Context, collection, key string, value Doc, opts SetOptions) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Query returns up to limit documents whose dotted field path equals
	// equals, ordered by key ascending. limit <= 0 means no limit.
	Query(ctx context.Context, collection, field string, equals any, limit int) ([]Snapshot, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
