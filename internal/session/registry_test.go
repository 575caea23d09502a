package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/identity"
)

type providerSet struct {
	made map[string]*fakeProvider
}

func (ps *providerSet) factory(_ context.Context, clientID, _ string) identity.Provider {
	p := newFakeProvider()
	ps.made[clientID] = p
	return p
}

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *providerSet) {
	t.Helper()
	ps := &providerSet{made: make(map[string]*fakeProvider)}
	g := NewRegistry(ps.factory, Deps{Store: newHookStore(), Logger: zap.NewNop()}, Config{}, ttl)
	t.Cleanup(g.Close)
	return g, ps
}

func TestRegistry_getReusesReconciler(t *testing.T) {
	g, _ := newTestRegistry(t, time.Minute)
	a := g.Get(context.Background(), "c1", "")
	b := g.Get(context.Background(), "c1", "")
	assert.Same(t, a, b)
	assert.Equal(t, "c1", a.ClientID())

	g.Get(context.Background(), "c2", "")
	assert.Equal(t, 2, g.Len())

	_, ok := g.Lookup("c3")
	assert.False(t, ok)
}

func TestRegistry_sweepEvictsIdle(t *testing.T) {
	g, ps := newTestRegistry(t, time.Minute)
	base := time.Now()
	g.now = func() time.Time { return base }

	evicted := 0
	g.SetEvictionHook(func(n int) { evicted += n })

	old := g.Get(context.Background(), "idle", "")
	g.now = func() time.Time { return base.Add(50 * time.Second) }
	g.Get(context.Background(), "active", "")

	g.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, g.Len())

	_, err := old.Snapshot()
	assert.ErrorIs(t, err, ErrClosed, "evicted reconciler is stopped")
	assert.Zero(t, ps.made["idle"].subscribers(), "evicted reconciler unsubscribed")

	fresh := g.Get(context.Background(), "idle", "")
	assert.NotSame(t, old, fresh)
}

func TestRegistry_janitor(t *testing.T) {
	g, _ := newTestRegistry(t, 5*time.Millisecond)
	g.Get(context.Background(), "c1", "")
	g.StartJanitor(5 * time.Millisecond)
	require.Eventually(t, func() bool { return g.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry_closeStopsEverything(t *testing.T) {
	g, ps := newTestRegistry(t, time.Minute)
	rec := g.Get(context.Background(), "c1", "")
	g.Close()
	assert.Zero(t, g.Len())
	_, err := rec.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, ps.made["c1"].subscribers())
}
