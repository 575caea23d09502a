package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory Ledger for tests and the memory store driver.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryLedger creates a MemoryLedger holding only the genesis entry.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: []*Entry{{
		Index:     0,
		Timestamp: now(),
		Action:    ActionGenesis,
		Actor:     SystemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}}}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, uid, action, actor string, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.entries[len(l.entries)-1]
	entry := &Entry{
		Index:     len(l.entries),
		Timestamp: now(),
		UID:       uid,
		Action:    action,
		Actor:     actor,
		DataHash:  sha256Sum(payloadJSON),
		PrevHash:  prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	l.entries = append(l.entries, entry)
	cp := *entry
	return &cp, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	cp := *l.entries[index]
	return &cp, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// tamper rewrites an entry in place. Tests only.
func (l *MemoryLedger) tamper(index int, fn func(*Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.entries[index])
}
