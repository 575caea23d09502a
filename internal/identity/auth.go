package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

// Auth is one browser client's view of the Service. It implements Provider.
type Auth struct {
	svc      *Service
	clientID string

	mu      sync.Mutex
	current *Handle
	subs    map[uint64]func(*account.Session)
	nextSub uint64
}

var _ Provider = (*Auth)(nil)

// SignIn implements Provider.
func (a *Auth) SignIn(ctx context.Context, cred Credential) (*Handle, error) {
	rec, err := a.svc.exchange(ctx, a.clientID, cred)
	if err != nil {
		return nil, err
	}
	authTime := rec.LastSignInAt
	tok, err := a.svc.tokens.IssueSession(rec.UID, authTime)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	h := &Handle{Session: rec.Session(), Token: tok, AuthTime: authTime}
	a.set(h)
	return h, nil
}

// SignOut implements Provider.
func (a *Auth) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Code: CodeInternal, Err: err}
	}
	a.set(nil)
	return nil
}

// DeleteAccount implements Provider. The handle must come from a sign-in
// within the recent login window.
func (a *Auth) DeleteAccount(ctx context.Context, h *Handle) error {
	if h == nil {
		return newError(CodeInternal, "no session handle")
	}
	claims, err := a.svc.tokens.VerifySession(h.Token)
	if err != nil {
		return &Error{Code: CodeRequiresRecentLogin, Err: err}
	}
	authTime := time.Unix(claims.AuthTime, 0)
	if age := a.svc.now().Sub(authTime); age > a.svc.recentLogin {
		return newError(CodeRequiresRecentLogin, "last sign-in %s ago", age.Truncate(time.Second))
	}
	if err := a.svc.records.Delete(ctx, claims.Subject); err != nil && !errors.Is(err, ErrNotFound) {
		return &Error{Code: CodeInternal, Err: err}
	}

	a.mu.Lock()
	signedIn := a.current != nil && a.current.Session.UID == claims.Subject
	a.mu.Unlock()
	if signedIn {
		a.set(nil)
	}
	return nil
}

// Current implements Provider.
func (a *Auth) Current() *Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Subscribe implements Provider.
func (a *Auth) Subscribe(fn func(*account.Session)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	sess := sessionOf(a.current)
	a.mu.Unlock()

	fn(sess)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Available implements Provider.
func (a *Auth) Available() bool { return a.svc.Available() }

// set replaces the current handle and notifies subscribers outside the lock.
func (a *Auth) set(h *Handle) {
	a.mu.Lock()
	a.current = h
	fns := make([]func(*account.Session), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	sess := sessionOf(h)
	for _, fn := range fns {
		fn(sess)
	}
}

func sessionOf(h *Handle) *account.Session {
	if h == nil {
		return nil
	}
	s := h.Session
	return &s
}
