// Package auditlog implements a hash-chained audit log of account lifecycle
// events: sign-ins, account creation, saves and deletion.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash (64 hex
// zeros). Every later entry records the hash of its predecessor, so Verify
// detects any rewritten row.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the hash of the genesis entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded by LinkHub.
const (
	ActionGenesis        = "genesis"
	ActionSignIn         = "sign-in"
	ActionAccountCreated = "account-created"
	ActionSave           = "save"
	ActionSignOut        = "sign-out"
	ActionDelete         = "delete-account"
)

// SystemActor is the actor of entries not caused by a browser client.
const SystemActor = "linkhub"

// Entry is a single audit record.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	UID       string    `json:"uid"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`     // client id or SystemActor
	DataHash  string    `json:"data_hash"` // SHA-256 of the JSON payload
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Ledger is the append-only audit log.
type Ledger interface {
	// Append adds a new entry chained to the previous one. payload is
	// JSON-marshalled and its SHA-256 is stored as DataHash.
	Append(ctx context.Context, uid, action, actor string, payload any) (*Entry, error)
	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)
	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)
	// Verify walks the chain and returns nil if it is intact.
	Verify(ctx context.Context) error
	// Root returns the hash of the chain tip.
	Root(ctx context.Context) (string, error)
}

// Discard drops every entry. It provides only Append and is used when
// audit.enabled is false.
type Discard struct{}

// Append records nothing.
func (Discard) Append(context.Context, string, string, string, any) (*Entry, error) {
	return nil, nil
}

// now truncates to microseconds so timestamps survive a Postgres round trip
// and the hash stays reproducible.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.UID, e.Action, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifyLink checks curr against its predecessor. prev is nil for genesis.
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
