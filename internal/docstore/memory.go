package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store. Documents are kept as
// encoded JSON so callers never share mutable maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte // collection → key → JSON
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, collection, key string) (Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(b)
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, collection, key string, value Doc, opts SetOptions) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.docs[collection] = coll
	}
	if opts.IfAbsent {
		if _, ok := coll[key]; ok {
			return ErrExists
		}
	} else if opts.Merge {
		if existing, ok := coll[key]; ok {
			cur, err := decode(existing)
			if err != nil {
				return err
			}
			v = Merge(cur, v)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	coll[key] = b
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], key)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, collection, field string, equals any, limit int) ([]Snapshot, error) {
	if _, err := pathParts(field); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.docs[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Snapshot
	for _, k := range keys {
		doc, err := decode(coll[k])
		if err != nil {
			return nil, err
		}
		if !matches(doc, field, equals) {
			continue
		}
		out = append(out, Snapshot{Key: k, Data: doc})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
