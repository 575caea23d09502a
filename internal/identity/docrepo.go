package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/LinkHub/internal/docstore"
)

// IdentityCollection holds identity records for document-store backed
// deployments.
const IdentityCollection = "identities"

const subjectKeyField = "subjectKey"

// DocstoreRepository keeps identity records in a docstore.Store, one
// document per uid. Upserts are serialized in-process; it is meant for the
// embedded single-node drivers.
type DocstoreRepository struct {
	mu    sync.Mutex
	store docstore.Store
}

// NewDocstoreRepository creates a DocstoreRepository.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store}
}

func subjectKey(provider, subject string) string { return provider + ":" + subject }

// Upsert implements Repository.
func (r *DocstoreRepository) Upsert(ctx context.Context, provider string, info UserInfo, now time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now = now.UTC()
	snaps, err := r.store.Query(ctx, IdentityCollection, subjectKeyField, subjectKey(provider, info.Subject), 1)
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}

	rec := &Record{
		UID:       uuid.New().String(),
		Provider:  provider,
		Subject:   info.Subject,
		CreatedAt: now,
	}
	if len(snaps) == 1 {
		if rec, err = recordFromDoc(snaps[0].Data); err != nil {
			return nil, fmt.Errorf("upsert identity: %w", err)
		}
	}
	rec.Email = info.Email
	rec.DisplayName = info.DisplayName
	rec.PhotoURL = info.PhotoURL
	rec.LastSignInAt = now

	if err := r.store.Set(ctx, IdentityCollection, rec.UID, recordToDoc(rec), docstore.SetOptions{}); err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return rec, nil
}

// Get implements Repository.
func (r *DocstoreRepository) Get(ctx context.Context, uid string) (*Record, error) {
	doc, err := r.store.Get(ctx, IdentityCollection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	rec, err := recordFromDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return rec, nil
}

// Delete implements Repository.
func (r *DocstoreRepository) Delete(ctx context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Get(ctx, uid); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, IdentityCollection, uid); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func recordToDoc(rec *Record) docstore.Doc {
	return docstore.Doc{
		"uid":           rec.UID,
		"provider":      rec.Provider,
		"subject":       rec.Subject,
		subjectKeyField: subjectKey(rec.Provider, rec.Subject),
		"email":         rec.Email,
		"displayName":   rec.DisplayName,
		"photoUrl":      rec.PhotoURL,
		"createdAt":     rec.CreatedAt.Format(time.RFC3339Nano),
		"lastSignInAt":  rec.LastSignInAt.Format(time.RFC3339Nano),
	}
}

func recordFromDoc(doc docstore.Doc) (*Record, error) {
	str := func(k string) string {
		s, _ := doc[k].(string)
		return s
	}
	created, err := time.Parse(time.RFC3339Nano, str("createdAt"))
	if err != nil {
		return nil, fmt.Errorf("decode createdAt: %w", err)
	}
	lastSignIn, err := time.Parse(time.RFC3339Nano, str("lastSignInAt"))
	if err != nil {
		return nil, fmt.Errorf("decode lastSignInAt: %w", err)
	}
	return &Record{
		UID:          str("uid"),
		Provider:     str("provider"),
		Subject:      str("subject"),
		Email:        str("email"),
		DisplayName:  str("displayName"),
		PhotoURL:     str("photoUrl"),
		CreatedAt:    created.UTC(),
		LastSignInAt: lastSignIn.UTC(),
	}, nil
}
