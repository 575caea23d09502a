package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/auditlog"
	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/saga"
)

// Deletion step names.
const (
	StepDeleteDocument = "delete-document"
	StepSignOut        = "sign-out"
	StepDeleteIdentity = "delete-identity"
)

// DeletionStatus is the combined result of an account deletion.
type DeletionStatus string

const (
	DeletionDeleted DeletionStatus = "deleted"
	DeletionAborted DeletionStatus = "aborted"
	DeletionPartial DeletionStatus = "partial"
)

// DeletionReport describes what an account deletion did.
type DeletionReport struct {
	Status DeletionStatus    `json:"status"`
	Steps  []saga.StepResult `json:"steps"`
}

// Outcome returns the outcome of the named step.
func (d *DeletionReport) Outcome(step string) saga.Outcome {
	for _, s := range d.Steps {
		if s.Name == step {
			return s.Outcome
		}
	}
	return ""
}

func deletionStatus(s saga.Status) DeletionStatus {
	switch s {
	case saga.StatusAborted:
		return DeletionAborted
	case saga.StatusPartial:
		return DeletionPartial
	default:
		return DeletionDeleted
	}
}

// DeleteUserAccount deletes the account document, signs out and deletes the
// identity record, in that order. Only a failure to delete the document
// aborts; the session is then left signed in and untouched.
func (r *Reconciler) DeleteUserAccount(ctx context.Context) (*DeletionReport, error) {
	var (
		op     uint64
		uid    string
		slug   string
		handle *identity.Handle
		err    error
	)
	if e := r.exec(func() {
		switch {
		case !r.state.stable():
			err = ErrBusy
		case !r.provider.Available():
			err = ErrUnavailable
			r.push(noticeUnavailable)
		case r.user == nil || r.provider.Current() == nil:
			err = ErrNoSession
			r.push(destructive("Not Signed In", "Please sign in to delete your account."))
		default:
			uid = r.user.UID
			slug = r.savedSlug
			// Captured before sign-out, which invalidates the provider's
			// current handle.
			handle = r.provider.Current()
			r.stopAutosave()
			op = r.begin(StateDeleting)
		}
	}); e != nil {
		return nil, e
	}
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(zap.String("uid", uid))
	logger.Info("deleting account")

	res := saga.Run(ctx, logger,
		saga.Step{Name: StepDeleteDocument, Kind: saga.Fatal, Run: func(ctx context.Context) error {
			if err := r.store.Delete(ctx, account.Collection, uid); err != nil {
				return fmt.Errorf("delete account document: %w", err)
			}
			if err := r.cache.Invalidate(ctx, slug); err != nil {
				logger.Warn("invalidate public page", zap.String("slug", slug), zap.Error(err))
			}
			return nil
		}},
		saga.Step{Name: StepSignOut, Kind: saga.BestEffort, Run: func(ctx context.Context) error {
			err := r.provider.SignOut(ctx)
			_ = r.exec(func() { r.user = nil })
			return err
		}},
		saga.Step{Name: StepDeleteIdentity, Kind: saga.Recoverable, Run: func(ctx context.Context) error {
			return r.provider.DeleteAccount(ctx, handle)
		}},
	)
	report := &DeletionReport{Status: deletionStatus(res.Status), Steps: res.Steps}

	if e := r.exec(func() {
		r.deletion = report
		if op == r.op {
			r.op++
		}
		switch report.Status {
		case DeletionAborted:
			r.state = StateSignedIn
			step, _ := res.Step(StepDeleteDocument)
			r.storeError = fmt.Sprintf("Failed to delete account: %v", step.Err)
			r.push(deleteDataFailure(step.Err))
		case DeletionPartial:
			r.enterSignedOut()
			step, _ := res.Step(StepDeleteIdentity)
			r.push(deleteIdentityFailure(step.Err))
		default:
			r.enterSignedOut()
			r.push(noticeDeleted)
		}
	}); e != nil {
		return report, e
	}

	if report.Status != DeletionAborted {
		r.record(ctx, uid, auditlog.ActionDelete, report)
	}
	logger.Info("account deletion finished", zap.String("status", string(report.Status)))
	return report, nil
}

func (r *Reconciler) enterSignedOut() {
	r.user = nil
	r.loadSeq++
	r.loading = false
	r.state = StateSignedOut
	r.resetDocument()
}
