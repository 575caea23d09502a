// Package publicpage loads the public LinkHub page for a username slug.
package publicpage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/docstore"
	"github.com/jmerrifield20/LinkHub/internal/pagecache"
)

var (
	// ErrNotFound is returned when no account uses the slug.
	ErrNotFound = errors.New("user not found")
	// ErrMissingUsername is returned for an empty URL segment.
	ErrMissingUsername = errors.New("username missing from url")
)

// Page is a loaded public page.
type Page struct {
	Slug    string          `json:"slug"`
	Profile account.Profile `json:"profile"`
	Links   []account.Link  `json:"links"`
	Cached  bool            `json:"-"`
}

// MetricsRecordFunc is an optional callback recording each lookup's result:
// "hit", "found", "not_found" or "error".
type MetricsRecordFunc func(result string)

// Loader resolves slugs to account documents.
type Loader struct {
	store     docstore.Store
	cache     pagecache.Cache
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// NewLoader creates a Loader. cache may be nil.
func NewLoader(store docstore.Store, cache pagecache.Cache, logger *zap.Logger) *Loader {
	if cache == nil {
		cache = pagecache.Noop{}
	}
	return &Loader{store: store, cache: cache, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (l *Loader) SetMetricsRecord(fn MetricsRecordFunc) {
	l.onMetrics = fn
}

// NormalizeSlug lowercases and trims a URL segment.
func NormalizeSlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Load returns the page for the raw URL segment. Duplicate slugs are logged
// and the first document by key wins.
func (l *Loader) Load(ctx context.Context, raw string) (*Page, error) {
	slug := NormalizeSlug(raw)
	if slug == "" {
		return nil, ErrMissingUsername
	}

	if doc, ok, err := l.cache.Get(ctx, slug); err != nil {
		l.logger.Warn("page cache read", zap.String("slug", slug), zap.Error(err))
	} else if ok {
		l.record("hit")
		return &Page{Slug: slug, Profile: doc.Profile, Links: doc.Links, Cached: true}, nil
	}

	snaps, err := l.store.Query(ctx, account.Collection, account.UsernameField, slug, 2)
	if err != nil {
		l.record("error")
		return nil, fmt.Errorf("query public page %q: %w", slug, err)
	}
	if len(snaps) == 0 {
		l.record("not_found")
		return nil, ErrNotFound
	}
	if len(snaps) > 1 {
		l.logger.Warn("multiple accounts share a username; using the first",
			zap.String("slug", slug),
			zap.String("used_key", snaps[0].Key),
			zap.String("other_key", snaps[1].Key),
		)
	}

	doc := account.FromMap(snaps[0].Data)
	if err := l.cache.Set(ctx, slug, doc); err != nil {
		l.logger.Warn("page cache write", zap.String("slug", slug), zap.Error(err))
	}
	l.record("found")
	return &Page{Slug: slug, Profile: doc.Profile, Links: doc.Links}, nil
}

func (l *Loader) record(result string) {
	if l.onMetrics != nil {
		l.onMetrics(result)
	}
}
