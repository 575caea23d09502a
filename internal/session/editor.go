package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/auditlog"
	"github.com/jmerrifield20/LinkHub/internal/docstore"
)

// editable reports whether local edits are allowed. Loop only.
func (r *Reconciler) editable() error {
	if r.state == StateSigningOut || r.state == StateDeleting {
		return ErrBusy
	}
	if r.user == nil {
		return ErrNoSession
	}
	return nil
}

// UpdateProfile replaces the local profile. The username is kept as typed
// until the next save.
func (r *Reconciler) UpdateProfile(p account.Profile) error {
	var err error
	if e := r.exec(func() {
		if err = r.editable(); err != nil {
			return
		}
		r.profile = p
		r.scheduleAutosave()
	}); e != nil {
		return e
	}
	return err
}

// AddLink appends a link with a time-derived id.
func (r *Reconciler) AddLink(title, url string) (account.Link, error) {
	var (
		link account.Link
		err  error
	)
	if e := r.exec(func() {
		if err = r.editable(); err != nil {
			return
		}
		var links []account.Link
		links, link, err = account.AddLink(r.links, title, url, r.now())
		if errors.Is(err, account.ErrMissingFields) {
			r.push(noticeMissing)
			return
		}
		r.links = links
		r.push(noticeLinkAdded)
		r.scheduleAutosave()
	}); e != nil {
		return account.Link{}, e
	}
	return link, err
}

// UpdateLink edits the link with the given id in place.
func (r *Reconciler) UpdateLink(id, title, url string) error {
	var err error
	if e := r.exec(func() {
		if err = r.editable(); err != nil {
			return
		}
		var links []account.Link
		if links, err = account.UpdateLink(r.links, id, title, url); err != nil {
			return
		}
		r.links = links
		r.scheduleAutosave()
	}); e != nil {
		return e
	}
	return err
}

// RemoveLink deletes the link with the given id.
func (r *Reconciler) RemoveLink(id string) error {
	var err error
	if e := r.exec(func() {
		if err = r.editable(); err != nil {
			return
		}
		var links []account.Link
		if links, err = account.RemoveLink(r.links, id); err != nil {
			return
		}
		r.links = links
		r.scheduleAutosave()
	}); e != nil {
		return e
	}
	return err
}

// Save merge-writes the local profile and links. The stored username is the
// slug of the local one, and the local username is updated to match.
func (r *Reconciler) Save(ctx context.Context) error {
	return r.save(ctx, false)
}

func (r *Reconciler) save(ctx context.Context, auto bool) error {
	var (
		uid, raw, slug, oldSlug string
		doc                     account.Document
		err                     error
	)
	if e := r.exec(func() {
		switch {
		case r.state != StateSignedIn && !r.state.stable():
			err = ErrBusy
		case r.user == nil || r.state != StateSignedIn:
			err = ErrNoSession
			if !auto {
				r.push(noticeNotSignedIn)
			}
		case r.isSaving:
			err = ErrBusy
			if auto {
				r.autosavePending = true
			}
		default:
			r.stopAutosave()
			r.isSaving = true
			uid = r.user.UID
			raw = r.profile.Username
			slug = account.Slugify(raw)
			oldSlug = r.savedSlug
			doc = account.Document{
				Profile: account.Profile{
					Username:  slug,
					Bio:       r.profile.Bio,
					AvatarURL: r.profile.AvatarURL,
				},
				Links: append([]account.Link(nil), r.links...),
			}
		}
	}); e != nil {
		return e
	}
	if err != nil {
		return err
	}

	writeErr := r.store.Set(ctx, account.Collection, uid, doc.ToMap(), docstore.SetOptions{Merge: true})
	if writeErr != nil {
		r.logger.Error("save account document", zap.String("uid", uid), zap.Bool("autosave", auto), zap.Error(writeErr))
	} else {
		if err := r.cache.Invalidate(ctx, oldSlug, slug); err != nil {
			r.logger.Warn("invalidate public page", zap.String("slug", slug), zap.Error(err))
		}
	}

	if e := r.exec(func() {
		r.isSaving = false
		switch {
		case writeErr != nil:
			r.storeError = fmt.Sprintf("Failed to save profile: %v", writeErr)
			r.push(saveFailure(writeErr))
		case r.user != nil && r.user.UID == uid:
			if r.profile.Username == raw {
				r.profile.Username = slug
			}
			r.savedSlug = slug
			r.storeError = ""
			if !auto {
				r.push(noticeSaved)
			}
		}
		if r.autosavePending {
			r.autosavePending = false
			r.scheduleAutosave()
		}
	}); e != nil {
		return e
	}
	if writeErr != nil {
		return fmt.Errorf("save: %w", writeErr)
	}
	r.record(ctx, uid, auditlog.ActionSave, map[string]any{"username": slug, "links": len(doc.Links)})
	return nil
}

// ── Autosave ──

// scheduleAutosave (re)arms the debounce timer. Loop only.
func (r *Reconciler) scheduleAutosave() {
	if r.cfg.AutosaveDelay <= 0 || r.user == nil {
		return
	}
	r.stopAutosave()
	r.autosave = time.AfterFunc(r.cfg.AutosaveDelay, func() {
		r.post(r.autosaveFired)
	})
}

func (r *Reconciler) stopAutosave() {
	if r.autosave != nil {
		r.autosave.Stop()
		r.autosave = nil
	}
}

// autosaveFired runs on the loop and hands the save to a tracked goroutine.
func (r *Reconciler) autosaveFired() {
	r.autosave = nil
	if r.state != StateSignedIn {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.save(r.ctx, true); err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrClosed) {
			r.logger.Debug("autosave", zap.Error(err))
		}
	}()
}
