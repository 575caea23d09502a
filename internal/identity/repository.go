package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an identity lookup finds no matching record.
var ErrNotFound = errors.New("identity not found")

// Repository persists identity records.
type Repository interface {
	// Upsert creates the record for (provider, subject) or refreshes its
	// profile fields. LastSignInAt is set to now; CreatedAt only on insert.
	Upsert(ctx context.Context, provider string, info UserInfo, now time.Time) (*Record, error)
	Get(ctx context.Context, uid string) (*Record, error)
	Delete(ctx context.Context, uid string) error
}

// ── Postgres ──────────────────────────────────────────────────────────────

// PostgresRepository stores identity records in the identities table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `uid, provider, subject, email, display_name, photo_url, created_at, last_sign_in_at`

// Upsert implements Repository.
func (r *PostgresRepository) Upsert(ctx context.Context, provider string, info UserInfo, now time.Time) (*Record, error) {
	q := `
		INSERT INTO identities (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (provider, subject) DO UPDATE SET
			email           = EXCLUDED.email,
			display_name    = EXCLUDED.display_name,
			photo_url       = EXCLUDED.photo_url,
			last_sign_in_at = EXCLUDED.last_sign_in_at
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.db.QueryRow(ctx, q,
		uuid.New().String(), provider, info.Subject, info.Email, info.DisplayName, info.PhotoURL, now.UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return rec, nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, uid string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM identities WHERE uid = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return rec, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, uid string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM identities WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(
		&rec.UID, &rec.Provider, &rec.Subject, &rec.Email,
		&rec.DisplayName, &rec.PhotoURL, &rec.CreatedAt, &rec.LastSignInAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ── Memory ────────────────────────────────────────────────────────────────

// MemoryRepository is an in-process Repository for tests and the memory
// store driver.
type MemoryRepository struct {
	mu     sync.Mutex
	byUID  map[string]*Record
	bySubj map[string]string // provider/subject → uid
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byUID:  make(map[string]*Record),
		bySubj: make(map[string]string),
	}
}

// Upsert implements Repository.
func (r *MemoryRepository) Upsert(_ context.Context, provider string, info UserInfo, now time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now = now.UTC()
	subj := provider + "/" + info.Subject
	if uid, ok := r.bySubj[subj]; ok {
		rec := r.byUID[uid]
		rec.Email = info.Email
		rec.DisplayName = info.DisplayName
		rec.PhotoURL = info.PhotoURL
		rec.LastSignInAt = now
		cp := *rec
		return &cp, nil
	}
	rec := &Record{
		UID:          uuid.New().String(),
		Provider:     provider,
		Subject:      info.Subject,
		Email:        info.Email,
		DisplayName:  info.DisplayName,
		PhotoURL:     info.PhotoURL,
		CreatedAt:    now,
		LastSignInAt: now,
	}
	r.byUID[rec.UID] = rec
	r.bySubj[subj] = rec.UID
	cp := *rec
	return &cp, nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, uid string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byUID[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	delete(r.byUID, uid)
	delete(r.bySubj, rec.Provider+"/"+rec.Subject)
	return nil
}
