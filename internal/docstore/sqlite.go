package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (collection, key)
)`

// SQLiteStore keeps documents as JSON text in a single SQLite file and queries
// them with json_extract.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens the SQLite database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	logger.Info("sqlite document store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (Doc, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND key = ?`, collection, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}
	return decode([]byte(raw))
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, collection, key string, value Doc, opts SetOptions) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if opts.IfAbsent {
		return s.create(ctx, tx, collection, key, v)
	}
	if opts.Merge {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND key = ?`, collection, key,
		).Scan(&raw)
		switch {
		case err == nil:
			cur, err := decode([]byte(raw))
			if err != nil {
				return err
			}
			v = Merge(cur, v)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("read document %s/%s: %w", collection, key, err)
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		collection, key, string(b),
	); err != nil {
		return fmt.Errorf("write document %s/%s: %w", collection, key, err)
	}
	return tx.Commit()
}

// create inserts a new row and reports ErrExists when the key is taken.
func (s *SQLiteStore) create(ctx context.Context, tx *sql.Tx, collection, key string, v Doc) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, key) DO NOTHING`,
		collection, key, string(b),
	)
	if err != nil {
		return fmt.Errorf("create document %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document %s/%s: %w", collection, key, err)
	}
	if n == 0 {
		return ErrExists
	}
	return tx.Commit()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key,
	); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Query implements Store. json_extract narrows candidates in SQL; the final
// comparison is done on the decoded value so types match the other backends.
func (s *SQLiteStore) Query(ctx context.Context, collection, field string, equals any, limit int) ([]Snapshot, error) {
	parts, err := pathParts(field)
	if err != nil {
		return nil, err
	}
	jsonPath := "$." + strings.Join(parts, ".")

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, data FROM documents
		WHERE collection = ? AND json_extract(data, ?) IS NOT NULL
		ORDER BY key ASC`,
		collection, jsonPath,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if !matches(doc, field, equals) {
			continue
		}
		out = append(out, Snapshot{Key: key, Data: doc})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
