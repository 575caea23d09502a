package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/auditlog"
	"github.com/jmerrifield20/LinkHub/internal/docstore"
	"github.com/jmerrifield20/LinkHub/internal/identity"
)

// BeginSignIn marks the session as signing in before the browser is sent to
// the provider's consent screen. The settle timer reverts it if the callback
// never arrives. A signed-in session stays signed in, and editable, until the
// callback switches accounts.
func (r *Reconciler) BeginSignIn() error {
	var err error
	if e := r.exec(func() {
		switch {
		case r.state == StateSigningOut || r.state == StateDeleting || r.exchanging:
			err = ErrBusy
		case !r.provider.Available():
			err = ErrUnavailable
			r.push(noticeUnavailable)
		case r.state == StateSignedIn:
		default:
			r.begin(StateSigningIn)
		}
	}); e != nil {
		return e
	}
	return err
}

// AbortSignIn ends a sign-in started by BeginSignIn that never reached the
// provider, reporting err as the failure.
func (r *Reconciler) AbortSignIn(err error) error {
	return r.exec(func() {
		if r.state != StateSigningIn || r.exchanging {
			return
		}
		r.op++
		r.stopSettle()
		r.push(signInFailure(err))
		r.reconcile()
	})
}

// SignInWithGoogle completes a sign-in with the OAuth callback credential.
// On success the account document is loaded, or created when the session
// looks like a first sign-in.
func (r *Reconciler) SignInWithGoogle(ctx context.Context, cred identity.Credential) error {
	var (
		op  uint64
		err error
	)
	if e := r.exec(func() {
		switch {
		case r.state == StateSigningOut || r.state == StateDeleting || r.exchanging:
			err = ErrBusy
		case !r.provider.Available():
			err = ErrUnavailable
			r.push(noticeUnavailable)
			if r.state == StateSigningIn {
				r.stopSettle()
				r.reconcile()
			}
		default:
			op = r.begin(StateSigningIn)
			r.exchanging = true
		}
	}); e != nil {
		return e
	}
	if err != nil {
		return err
	}

	h, err := r.provider.SignIn(ctx, cred)
	if err != nil {
		r.logger.Warn("sign in with google",
			zap.String("code", string(identity.CodeOf(err))),
			zap.Error(err),
		)
		_ = r.exec(func() {
			if !r.current(op) {
				return
			}
			r.exchanging = false
			r.enterSignedOut()
			r.push(signInFailure(err))
		})
		return fmt.Errorf("sign in: %w", err)
	}

	sess := h.Session
	doc, persisted, created, loadErr := r.initialDocument(ctx, &sess)
	if loadErr != nil {
		r.logger.Error("prepare account document", zap.String("uid", sess.UID), zap.Error(loadErr))
	}

	applied := false
	if e := r.exec(func() {
		if !r.current(op) {
			r.logger.Debug("sign-in result superseded", zap.String("uid", sess.UID))
			return
		}
		applied = true
		r.exchanging = false
		r.user = &sess
		r.state = StateSignedIn
		r.loadSeq++
		r.loading = false
		r.setDocument(doc, persisted)
		if loadErr != nil {
			r.storeError = fmt.Sprintf("Could not load your profile: %v", loadErr)
			r.push(loadFailure(loadErr))
		}
		r.push(noticeSignedIn)
	}); e != nil {
		return e
	}

	if applied {
		r.record(ctx, sess.UID, auditlog.ActionSignIn, map[string]any{"display_name": sess.DisplayName})
		if created {
			r.record(ctx, sess.UID, auditlog.ActionAccountCreated, map[string]any{"username": doc.Profile.Username})
		}
	}
	return nil
}

// initialDocument returns the document to edit after sign-in: the stored one,
// a newly written initial document for a first sign-in, or unpersisted
// provider defaults.
func (r *Reconciler) initialDocument(ctx context.Context, sess *account.Session) (doc account.Document, persisted, created bool, err error) {
	stored, err := r.readDocument(ctx, sess.UID)
	if err == nil {
		return *stored, true, false, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return account.ProviderDefaults(sess), false, false, err
	}
	if !sess.IsNew(r.cfg.NewUserWindow) {
		return account.ProviderDefaults(sess), false, false, nil
	}

	initial := account.InitialDocument(sess)
	err = r.store.Set(ctx, account.Collection, sess.UID, initial.ToMap(), docstore.SetOptions{IfAbsent: true})
	if errors.Is(err, docstore.ErrExists) {
		// Another client created it between the read and the write.
		stored, err = r.readDocument(ctx, sess.UID)
		if err != nil {
			return account.ProviderDefaults(sess), false, false, err
		}
		return *stored, true, false, nil
	}
	if err != nil {
		return initial, false, false, fmt.Errorf("create account document: %w", err)
	}
	r.logger.Info("created account document", zap.String("uid", sess.UID), zap.String("username", initial.Profile.Username))
	return initial, true, true, nil
}

// SignOutUser ends the session. On failure the session stays signed in.
func (r *Reconciler) SignOutUser(ctx context.Context) error {
	var (
		op  uint64
		uid string
		err error
	)
	if e := r.exec(func() {
		switch {
		case !r.state.stable():
			err = ErrBusy
		case r.user == nil:
			err = ErrNoSession
		default:
			uid = r.user.UID
			r.stopAutosave()
			op = r.begin(StateSigningOut)
		}
	}); e != nil {
		return e
	}
	if err != nil {
		return err
	}

	serr := r.provider.SignOut(ctx)
	if serr != nil {
		r.logger.Warn("sign out", zap.String("uid", uid), zap.Error(serr))
	}
	if e := r.exec(func() {
		if !r.current(op) {
			return
		}
		if serr != nil {
			r.state = StateSignedIn
			r.push(noticeSignOutFail)
			return
		}
		r.enterSignedOut()
		r.push(noticeSignedOut)
	}); e != nil {
		return e
	}
	if serr != nil {
		return fmt.Errorf("sign out: %w", serr)
	}
	r.record(ctx, uid, auditlog.ActionSignOut, nil)
	return nil
}
