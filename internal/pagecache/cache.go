// Package pagecache caches rendered-ready public pages by slug so repeated
// visits to /u/{slug} skip the document-store query.
package pagecache

import (
	"context"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

// Cache is a slug-keyed cache of account documents.
type Cache interface {
	// Get returns the cached document and true on a hit.
	Get(ctx context.Context, slug string) (*account.Document, bool, error)
	// Set stores the document under slug.
	Set(ctx context.Context, slug string, doc account.Document) error
	// Invalidate drops the entries for the given slugs. Empty slugs are ignored.
	Invalidate(ctx context.Context, slugs ...string) error
}

// Noop never caches anything.
type Noop struct{}

// Get implements Cache.
func (Noop) Get(context.Context, string) (*account.Document, bool, error) { return nil, false, nil }

// Set implements Cache.
func (Noop) Set(context.Context, string, account.Document) error { return nil }

// Invalidate implements Cache.
func (Noop) Invalidate(context.Context, ...string) error { return nil }
