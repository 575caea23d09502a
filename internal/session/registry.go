package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/identity"
)

// ProviderFactory returns the identity provider for a browser client,
// restoring a signed-in session from handleToken when it is valid.
type ProviderFactory func(ctx context.Context, clientID, handleToken string) identity.Provider

// Registry holds one Reconciler per browser client and evicts idle ones.
type Registry struct {
	newProvider ProviderFactory
	deps        Deps
	cfg         Config
	idleTTL     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	onEvict func(n int)
}

type registryEntry struct {
	rec      *Reconciler
	lastSeen time.Time
}

// NewRegistry creates a Registry. idleTTL defaults to 30 minutes.
func NewRegistry(newProvider ProviderFactory, deps Deps, cfg Config, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		newProvider: newProvider,
		deps:        deps,
		cfg:         cfg,
		idleTTL:     idleTTL,
		logger:      deps.Logger,
		now:         time.Now,
		entries:     make(map[string]*registryEntry),
		stop:        make(chan struct{}),
	}
}

// SetEvictionHook configures a callback invoked with the number of
// reconcilers removed by each sweep.
func (g *Registry) SetEvictionHook(fn func(n int)) {
	g.onEvict = fn
}

// Get returns the reconciler for clientID, creating it on first use.
// handleToken is only consulted on creation.
func (g *Registry) Get(ctx context.Context, clientID, handleToken string) *Reconciler {
	if rec, ok := g.Lookup(clientID); ok {
		return rec
	}

	// The provider may hit the identity repository, so build outside the lock.
	rec := New(clientID, g.newProvider(ctx, clientID, handleToken), g.deps, g.cfg)

	g.mu.Lock()
	if e, ok := g.entries[clientID]; ok {
		e.lastSeen = g.now()
		g.mu.Unlock()
		rec.Close()
		return e.rec
	}
	g.entries[clientID] = &registryEntry{rec: rec, lastSeen: g.now()}
	g.mu.Unlock()

	g.logger.Debug("session reconciler created", zap.String("client_id", clientID))
	return rec
}

// Lookup returns the reconciler for clientID without creating one.
func (g *Registry) Lookup(clientID string) (*Reconciler, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[clientID]
	if !ok {
		return nil, false
	}
	e.lastSeen = g.now()
	return e.rec, true
}

// Len returns the number of live reconcilers.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Sweep closes and removes reconcilers idle longer than the TTL.
func (g *Registry) Sweep() int {
	cutoff := g.now().Add(-g.idleTTL)

	g.mu.Lock()
	var idle []*Reconciler
	for id, e := range g.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.rec)
			delete(g.entries, id)
		}
	}
	g.mu.Unlock()

	for _, rec := range idle {
		rec.Close()
	}
	if len(idle) > 0 {
		g.logger.Debug("evicted idle session reconcilers", zap.Int("count", len(idle)))
		if g.onEvict != nil {
			g.onEvict(len(idle))
		}
	}
	return len(idle)
}

// StartJanitor sweeps every interval until Close. interval defaults to a
// quarter of the idle TTL.
func (g *Registry) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = g.idleTTL / 4
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Sweep()
			case <-g.stop:
				return
			}
		}
	}()
}

// Close stops the janitor and closes every reconciler.
func (g *Registry) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
	g.wg.Wait()

	g.mu.Lock()
	all := make([]*Reconciler, 0, len(g.entries))
	for id, e := range g.entries {
		all = append(all, e.rec)
		delete(g.entries, id)
	}
	g.mu.Unlock()

	for _, rec := range all {
		rec.Close()
	}
}
