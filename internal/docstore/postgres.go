package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore keeps documents as jsonb rows in the documents table
// (see migrations/001_init.up.sql).
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Doc, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}
	return decode(raw)
}

// Set implements Store. Merge writes lock the row, merge in Go and write the
// result back inside one transaction.
func (s *PostgresStore) Set(ctx context.Context, collection, key string, value Doc, opts SetOptions) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if opts.IfAbsent {
		return s.create(ctx, tx, collection, key, v)
	}
	if opts.Merge {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM documents WHERE collection = $1 AND key = $2 FOR UPDATE`,
			collection, key,
		).Scan(&raw)
		switch {
		case err == nil:
			cur, err := decode(raw)
			if err != nil {
				return err
			}
			v = Merge(cur, v)
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("lock document %s/%s: %w", collection, key, err)
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO documents (collection, key, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, key, string(b),
	); err != nil {
		return fmt.Errorf("write document %s/%s: %w", collection, key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// create inserts a new row and reports ErrExists when the key is taken.
func (s *PostgresStore) create(ctx context.Context, tx pgx.Tx, collection, key string, v Doc) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO documents (collection, key, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, key) DO NOTHING`,
		collection, key, string(b),
	)
	if err != nil {
		return fmt.Errorf("create document %s/%s: %w", collection, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key,
	); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Query implements Store. The dotted field becomes a jsonb path and equals is
// compared as jsonb, so strings, numbers and booleans all match exactly.
func (s *PostgresStore) Query(ctx context.Context, collection, field string, equals any, limit int) ([]Snapshot, error) {
	path, err := pathParts(field)
	if err != nil {
		return nil, err
	}
	want, err := json.Marshal(equals)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}

	q := `SELECT key, data FROM documents
		WHERE collection = $1 AND data #> $2 = $3::jsonb
		ORDER BY key ASC`
	args := []any{collection, path, string(want)}
	if limit > 0 {
		q += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Key: key, Data: doc})
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements Store. The pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
