package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/identity"
)

var ctx = context.Background()

// ── Observe ──

func TestReconciler_firstNotificationSettlesUnknown(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{})
	s := h.waitFor(t, "signed out", signedOut)
	assert.False(t, s.AuthLoading)
	assert.Nil(t, s.User)
	assert.Equal(t, account.DefaultProfile(), s.Profile)
}

func TestReconciler_restoredSessionLoadsStoredDocument(t *testing.T) {
	p := newFakeProvider()
	sess := newSession("u1", "Ada", false)
	p.current = handleFor(sess)

	h := &harness{p: p, store: newHookStore(), cache: &recordingCache{}}
	h.store.put(t, "u1", account.Document{
		Profile: account.Profile{Username: "ada", Bio: "stored"},
		Links:   []account.Link{{ID: "9", Title: "Blog", URL: "https://ada.dev"}},
	})
	h.start(t, Config{})

	s := h.waitFor(t, "signed in", signedIn)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.UID)
	assert.Equal(t, "stored", s.Profile.Bio)
	assert.Len(t, s.Links, 1)
}

func TestReconciler_staleLoadIsDropped(t *testing.T) {
	p := newFakeProvider()
	h := &harness{p: p, store: newHookStore(), cache: &recordingCache{}}
	gateA := make(chan struct{})
	h.store.getGates["a"] = gateA
	h.store.put(t, "a", account.Document{Profile: account.Profile{Username: "alice"}})
	h.store.put(t, "b", account.Document{Profile: account.Profile{Username: "bob"}})
	h.start(t, Config{})
	h.waitFor(t, "signed out", signedOut)

	p.set(handleFor(newSession("a", "Alice", false)))
	p.set(handleFor(newSession("b", "Bob", false)))
	h.waitFor(t, "bob loaded", func(s Snapshot) bool { return signedIn(s) && s.Profile.Username == "bob" })

	close(gateA)
	require.Never(t, func() bool {
		s, err := h.r.Snapshot()
		return err == nil && s.Profile.Username == "alice"
	}, 100*time.Millisecond, 5*time.Millisecond)
}

// ── Sign in ──

func TestSignIn_newUserWritesInitialDocument(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada Lovelace", true)
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed out", signedOut)

	require.NoError(t, h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}))

	stored, ok := h.store.doc(t, "u1")
	require.True(t, ok, "initial document should be written")
	assert.Equal(t, "ada-lovelace", stored.Profile.Username)
	assert.Equal(t, "https://example.com/u1.png", stored.Profile.AvatarURL)
	assert.Equal(t, account.PlaceholderLinks(), stored.Links)

	s := h.snap(t)
	assert.True(t, s.SignedIn())
	assert.Equal(t, stored.Profile, s.Profile)
	assert.True(t, hasNotice(s, "Signed In"))
}

func TestSignIn_returningUserWithoutDocumentIsNotPersisted(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada Lovelace", false)
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed out", signedOut)

	require.NoError(t, h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}))

	_, ok := h.store.doc(t, "u1")
	assert.False(t, ok, "no document is written for a returning user")
	assert.Zero(t, h.store.setCount())

	s := h.snap(t)
	assert.Equal(t, "ada-lovelace", s.Profile.Username)
	assert.Equal(t, "https://example.com/u1.png", s.Profile.AvatarURL)
}

func TestSignIn_existingDocumentIsKept(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada Lovelace", true)
	h := &harness{p: p, store: newHookStore(), cache: &recordingCache{}}
	h.store.put(t, "u1", account.Document{Profile: account.Profile{Username: "custom"}, Links: []account.Link{}})
	h.start(t, Config{})
	h.waitFor(t, "signed out", signedOut)

	require.NoError(t, h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}))

	assert.Zero(t, h.store.setCount())
	assert.Equal(t, "custom", h.snap(t).Profile.Username)
}

func TestSignIn_concurrentCreateIsNotClobbered(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada", true)
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed out", signedOut)

	other := account.Document{Profile: account.Profile{Username: "other-tab"}, Links: []account.Link{}}
	h.store.mu.Lock()
	h.store.beforeSet = func() { h.store.put(t, "u1", other) }
	h.store.mu.Unlock()

	require.NoError(t, h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}))

	stored, ok := h.store.doc(t, "u1")
	require.True(t, ok)
	assert.Equal(t, "other-tab", stored.Profile.Username)

	s := h.snap(t)
	assert.True(t, s.SignedIn())
	assert.Equal(t, "other-tab", s.Profile.Username)
}

func TestSignIn_failureIsClassified(t *testing.T) {
	tests := []struct {
		code  identity.Code
		title string
	}{
		{identity.CodePopupBlocked, "Popup Blocked"},
		{identity.CodePopupClosedByUser, "Sign In Cancelled"},
		{identity.CodeCancelledPopupRequest, "Sign In Cancelled"},
		{identity.CodeInvalidAPIKey, "Configuration Error"},
		{identity.CodeUnauthorizedDomain, "Domain Not Authorized"},
		{identity.CodeInternal, "Sign In Failed"},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			p := newFakeProvider()
			p.signInErr = &identity.Error{Code: tc.code}
			h := newHarness(t, p, Config{})
			h.waitFor(t, "signed out", signedOut)

			err := h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"})
			require.Error(t, err)
			assert.Equal(t, tc.code, identity.CodeOf(err))

			s := h.snap(t)
			assert.Equal(t, StateSignedOut, s.State)
			assert.Nil(t, s.User)
			assert.True(t, hasNotice(s, tc.title), "notices: %+v", s.Notices)
		})
	}
}

func TestSignIn_unavailableProvider(t *testing.T) {
	p := newFakeProvider()
	p.available = false
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed out", signedOut)

	assert.ErrorIs(t, h.r.BeginSignIn(), ErrUnavailable)
	assert.ErrorIs(t, h.r.SignInWithGoogle(ctx, identity.Credential{}), ErrUnavailable)
	assert.Equal(t, StateSignedOut, h.snap(t).State)
}

func TestSignIn_notificationsIgnoredDuringTransition(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada", false)
	gate := make(chan struct{})
	p.signInGate = gate
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed out", signedOut)

	errc := make(chan error, 1)
	go func() { errc <- h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}) }()
	h.waitFor(t, "signing in", func(s Snapshot) bool { return s.State == StateSigningIn })

	p.set(handleFor(newSession("u2", "Mallory", false)))
	s := h.snap(t)
	assert.Equal(t, StateSigningIn, s.State)
	assert.Nil(t, s.User, "notification must not be adopted mid-transition")
	assert.True(t, s.AuthLoading)

	// Explicit operations are rejected while the sign-in is in flight.
	assert.ErrorIs(t, h.r.SignOutUser(ctx), ErrBusy)
	_, err := h.r.DeleteUserAccount(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, h.r.Save(ctx), ErrBusy)
	assert.ErrorIs(t, h.r.BeginSignIn(), ErrBusy)

	close(gate)
	require.NoError(t, <-errc)
	s = h.waitFor(t, "signed in", signedIn)
	assert.Equal(t, "u1", s.User.UID)
}

func TestBeginSignIn_settleTimerRecovers(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{SettleTimeout: 30 * time.Millisecond})
	h.waitFor(t, "signed out", signedOut)

	require.NoError(t, h.r.BeginSignIn())
	assert.Equal(t, StateSigningIn, h.snap(t).State)

	s := h.waitFor(t, "settled", signedOut)
	assert.True(t, hasNotice(s, "Sign-In Timed Out"))
	assert.False(t, s.AuthLoading)
}

func TestAbortSignIn(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{})
	h.waitFor(t, "signed out", signedOut)

	require.NoError(t, h.r.BeginSignIn())
	require.NoError(t, h.r.AbortSignIn(&identity.Error{Code: identity.CodeInternal, Err: errors.New("state signing failed")}))

	s := h.snap(t)
	assert.Equal(t, StateSignedOut, s.State)
	assert.True(t, hasNotice(s, "Sign In Failed"))

	// Without a sign-in in progress it is a no-op.
	require.NoError(t, h.r.AbortSignIn(errors.New("ignored")))
	assert.Equal(t, StateSignedOut, h.snap(t).State)
}

func TestBeginSignIn_signedInSessionStaysEditable(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{SettleTimeout: time.Hour})
	h.waitFor(t, "signed in", signedIn)

	require.NoError(t, h.r.BeginSignIn())
	assert.Equal(t, StateSignedIn, h.snap(t).State)

	require.NoError(t, h.r.Save(ctx))
	_, ok := h.store.doc(t, "u1")
	assert.True(t, ok, "save proceeds after an abandoned consent redirect")
}

func TestSignIn_lateResultAfterSettleIsReconciled(t *testing.T) {
	p := newFakeProvider()
	p.next = newSession("u1", "Ada", false)
	gate := make(chan struct{})
	p.signInGate = gate
	h := newHarness(t, p, Config{SettleTimeout: 30 * time.Millisecond})
	h.waitFor(t, "signed out", signedOut)

	errc := make(chan error, 1)
	go func() { errc <- h.r.SignInWithGoogle(ctx, identity.Credential{Code: "c"}) }()
	h.waitFor(t, "settled", func(s Snapshot) bool { return signedOut(s) && hasNotice(s, "Sign-In Timed Out") })

	close(gate)
	require.NoError(t, <-errc)
	s := h.waitFor(t, "notification adopted", signedIn)
	assert.Equal(t, "u1", s.User.UID)
}

// ── Sign out ──

func TestSignOut(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	require.NoError(t, h.r.SignOutUser(ctx))
	s := h.snap(t)
	assert.Equal(t, StateSignedOut, s.State)
	assert.Nil(t, s.User)
	assert.Equal(t, account.DefaultProfile(), s.Profile)
	assert.True(t, hasNotice(s, "Signed Out"))

	assert.ErrorIs(t, h.r.SignOutUser(ctx), ErrNoSession)
}

func TestSignOut_failureStaysSignedIn(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	p.signOutErr = errors.New("network down")
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	require.Error(t, h.r.SignOutUser(ctx))
	s := h.snap(t)
	assert.Equal(t, StateSignedIn, s.State)
	require.NotNil(t, s.User)
	assert.False(t, s.AuthLoading)
	assert.True(t, hasNotice(s, "Sign Out Failed"))
}

// ── Editor & save ──

func TestSave_slugifiesAndSurvivesReload(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada Lovelace", false))
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	require.NoError(t, h.r.UpdateProfile(account.Profile{
		Username:  "  Ada  THE Great!! ",
		Bio:       "Analyst",
		AvatarURL: "https://example.com/a.png",
	}))
	assert.Equal(t, "  Ada  THE Great!! ", h.snap(t).Profile.Username, "username kept as typed until save")

	require.NoError(t, h.r.Save(ctx))

	stored, ok := h.store.doc(t, "u1")
	require.True(t, ok)
	assert.Equal(t, "ada-the-great", stored.Profile.Username)
	assert.Equal(t, "Analyst", stored.Profile.Bio)

	s := h.snap(t)
	assert.Equal(t, "ada-the-great", s.Profile.Username)
	assert.Empty(t, s.StoreError)
	assert.True(t, hasNotice(s, "Changes Saved!"))
	assert.Equal(t, "https://linkhub.example/u/ada-the-great", s.ShareURL)
	assert.Contains(t, h.cache.slugs(), "ada-the-great")

	// A fresh reconciler for the same session sees the saved slug.
	h.r.Close()
	h.start(t, Config{})
	s = h.waitFor(t, "reloaded", signedIn)
	assert.Equal(t, "ada-the-great", s.Profile.Username)

	// Renaming invalidates both the old and the new public page.
	require.NoError(t, h.r.UpdateProfile(account.Profile{Username: "countess", Bio: "Analyst"}))
	require.NoError(t, h.r.Save(ctx))
	assert.Subset(t, h.cache.slugs(), []string{"ada-the-great", "countess"})
}

func TestSave_requiresSession(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{})
	h.waitFor(t, "signed out", signedOut)

	assert.ErrorIs(t, h.r.Save(ctx), ErrNoSession)
	assert.True(t, hasNotice(h.snap(t), "Not Signed In"))
	assert.ErrorIs(t, h.r.UpdateProfile(account.Profile{Username: "x"}), ErrNoSession)
}

func TestSave_rejectedWhileSaving(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	gate := make(chan struct{})
	h.store.mu.Lock()
	h.store.setGate = gate
	h.store.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- h.r.Save(ctx) }()
	h.waitFor(t, "saving", func(s Snapshot) bool { return s.IsSaving })

	assert.ErrorIs(t, h.r.Save(ctx), ErrBusy)
	close(gate)
	require.NoError(t, <-errc)
	assert.False(t, h.snap(t).IsSaving)
}

func TestSave_storeFailureSetsStoreError(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	h.store.mu.Lock()
	h.store.setErr = errors.New("quota exceeded")
	h.store.mu.Unlock()

	require.Error(t, h.r.Save(ctx))
	s := h.snap(t)
	assert.Contains(t, s.StoreError, "quota exceeded")
	assert.True(t, hasNotice(s, "Save Failed"))
	assert.False(t, s.IsSaving)
}

func TestLinks_addUpdateRemove(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{})
	h.waitFor(t, "signed in", signedIn)

	_, err := h.r.AddLink("", "https://x")
	assert.ErrorIs(t, err, account.ErrMissingFields)
	assert.True(t, hasNotice(h.snap(t), "Missing Fields"))

	a, err := h.r.AddLink("A", "https://a")
	require.NoError(t, err)
	b, err := h.r.AddLink("B", "https://b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, h.r.UpdateLink(a.ID, "A2", "https://a2"))
	require.NoError(t, h.r.RemoveLink("1"))
	assert.ErrorIs(t, h.r.RemoveLink("missing"), account.ErrLinkNotFound)

	var titles []string
	for _, l := range h.snap(t).Links {
		titles = append(titles, l.Title)
	}
	if diff := cmp.Diff([]string{"Follow me on X", "A2", "B"}, titles); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestAutosave_debouncedWrite(t *testing.T) {
	p := newFakeProvider()
	p.current = handleFor(newSession("u1", "Ada", false))
	h := newHarness(t, p, Config{AutosaveDelay: 20 * time.Millisecond})
	h.waitFor(t, "signed in", signedIn)

	for _, bio := range []string{"a", "ab", "abc"} {
		require.NoError(t, h.r.UpdateProfile(account.Profile{Username: "ada", Bio: bio}))
	}
	require.Eventually(t, func() bool {
		d, ok := h.store.doc(t, "u1")
		return ok && d.Profile.Bio == "abc"
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, hasNotice(h.snap(t), "Changes Saved!"), "autosave is silent on success")
}

func TestShareURL(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{PublicBaseURL: "https://links.example/"})
	h.waitFor(t, "signed out", signedOut)
	got, err := h.r.ShareURL()
	require.NoError(t, err)
	assert.Equal(t, "https://links.example/u/yourname", got)
	assert.Equal(t, "https://x.io/u/ada-lovelace", BuildShareURL("https://x.io", "Ada Lovelace"))
}

func TestTakeNoticesDrains(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{MaxNotices: 2})
	h.waitFor(t, "signed out", signedOut)
	for i := 0; i < 3; i++ {
		_ = h.r.Save(ctx)
	}
	n, err := h.r.TakeNotices()
	require.NoError(t, err)
	assert.Len(t, n, 2, "queue is bounded")
	n, _ = h.r.TakeNotices()
	assert.Empty(t, n)
}

func TestClosedReconcilerRejectsCalls(t *testing.T) {
	h := newHarness(t, newFakeProvider(), Config{})
	h.r.Close()
	_, err := h.r.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, h.p.subscribers())
}
