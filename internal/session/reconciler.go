// Package session implements the per-browser Session Reconciler: the state
// machine that arbitrates sign-in, sign-out and account deletion against the
// identity provider's change notifications, and owns the editor's local copy
// of the account document.
//
// All state is owned by one goroutine that drains a command queue. Provider
// and store calls run on the caller's goroutine (or a background goroutine
// started by the loop) and hand their results back as commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/auditlog"
	"github.com/jmerrifield20/LinkHub/internal/docstore"
	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/pagecache"
)

// Auditor records account lifecycle events. Satisfied by auditlog.Ledger
// and auditlog.Discard.
type Auditor interface {
	Append(ctx context.Context, uid, action, actor string, payload any) (*auditlog.Entry, error)
}

// Config holds reconciler settings.
type Config struct {
	// NewUserWindow is the largest gap between account creation and last
	// sign-in for which a session counts as a first sign-in.
	NewUserWindow time.Duration
	// SettleTimeout recovers a sign-in or sign-out that never completes.
	SettleTimeout time.Duration
	// AutosaveDelay debounces a save after each edit. Zero disables autosave.
	AutosaveDelay time.Duration
	// PublicBaseURL prefixes share URLs.
	PublicBaseURL string
	// MaxNotices bounds the pending notice queue.
	MaxNotices int
}

func (c *Config) applyDefaults() {
	if c.NewUserWindow <= 0 {
		c.NewUserWindow = 5 * time.Second
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 2 * time.Minute
	}
	if c.MaxNotices <= 0 {
		c.MaxNotices = 20
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
}

// Deps are the collaborators shared by every reconciler.
type Deps struct {
	Store  docstore.Store
	Cache  pagecache.Cache // optional
	Audit  Auditor         // optional
	Logger *zap.Logger
}

// Reconciler is the session state machine for one browser client.
type Reconciler struct {
	clientID string
	provider identity.Provider
	store    docstore.Store
	cache    pagecache.Cache
	audit    Auditor
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	cmds        chan func()
	done        chan struct{}
	closeOnce   sync.Once
	ctx         context.Context // background work, cancelled by Close
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	// ── Loop-owned state ──
	state      State
	op         uint64 // id of the explicit transition in flight
	exchanging bool   // provider sign-in call running
	user       *account.Session
	profile    account.Profile
	links      []account.Link
	savedSlug  string // username of the stored document, "" if none
	storeError string
	isSaving   bool
	loading    bool
	loadSeq    uint64
	notices    []Notice
	deletion   *DeletionReport

	settle          *time.Timer
	autosave        *time.Timer
	autosavePending bool
}

// New starts a reconciler for clientID and subscribes it to provider.
func New(clientID string, provider identity.Provider, deps Deps, cfg Config) *Reconciler {
	cfg.applyDefaults()
	if deps.Cache == nil {
		deps.Cache = pagecache.Noop{}
	}
	if deps.Audit == nil {
		deps.Audit = auditlog.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		clientID: clientID,
		provider: provider,
		store:    deps.Store,
		cache:    deps.Cache,
		audit:    deps.Audit,
		cfg:      cfg,
		logger:   deps.Logger.With(zap.String("client_id", clientID)),
		now:      time.Now,
		cmds:     make(chan func(), 16),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateUnknown,
	}
	r.resetDocument()

	r.wg.Add(1)
	go r.loop()
	r.unsubscribe = provider.Subscribe(r.onSessionChange)
	return r
}

// ClientID returns the browser client this reconciler serves.
func (r *Reconciler) ClientID() string { return r.clientID }

// SessionToken returns the provider's current session handle token, or "".
func (r *Reconciler) SessionToken() string {
	if h := r.provider.Current(); h != nil {
		return h.Token
	}
	return ""
}

// Close stops the loop, unsubscribes from the provider and waits for
// background work to finish. Safe to call more than once.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		r.cancel()
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Reconciler) loop() {
	defer r.wg.Done()
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-r.done:
			r.stopSettle()
			r.stopAutosave()
			return
		}
	}
}

// exec runs fn on the loop and waits for it.
func (r *Reconciler) exec(fn func()) error {
	ran := make(chan struct{})
	select {
	case r.cmds <- func() { defer close(ran); fn() }:
	case <-r.done:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// post queues fn without waiting. Never call it from the loop.
func (r *Reconciler) post(fn func()) {
	select {
	case r.cmds <- fn:
	case <-r.done:
	}
}

// ── Snapshot ──

// Snapshot returns a copy of the current state. Pending notices are included
// but not consumed.
func (r *Reconciler) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := r.exec(func() { s = r.snapshot() })
	return s, err
}

// TakeNotices returns and clears the pending notices.
func (r *Reconciler) TakeNotices() ([]Notice, error) {
	var out []Notice
	err := r.exec(func() {
		out = r.notices
		r.notices = nil
	})
	return out, err
}

// ShareURL returns the public URL of the current profile.
func (r *Reconciler) ShareURL() (string, error) {
	s, err := r.Snapshot()
	if err != nil {
		return "", err
	}
	return s.ShareURL, nil
}

// BuildShareURL joins the public base URL and the slug of username.
func BuildShareURL(baseURL, username string) string {
	return strings.TrimRight(baseURL, "/") + "/u/" + account.Slugify(username)
}

func (r *Reconciler) snapshot() Snapshot {
	s := Snapshot{
		State:       r.state,
		StateName:   r.state.String(),
		Profile:     r.profile,
		Links:       append([]account.Link(nil), r.links...),
		StoreError:  r.storeError,
		IsSaving:    r.isSaving,
		IsLoading:   r.loading,
		AuthLoading: !r.state.stable() || r.state == StateUnknown,
		IsDeleting:  r.state == StateDeleting,
		ShareURL:    BuildShareURL(r.cfg.PublicBaseURL, r.profile.Username),
		Notices:     append([]Notice(nil), r.notices...),
	}
	if r.user != nil {
		u := *r.user
		s.User = &u
	}
	if r.deletion != nil {
		d := *r.deletion
		s.Deletion = &d
	}
	return s
}

// ── Session change notifications ──

func (r *Reconciler) onSessionChange(s *account.Session) {
	var cp *account.Session
	if s != nil {
		v := *s
		cp = &v
	}
	r.post(func() { r.adopt(cp) })
}

// adopt applies a provider notification. It is ignored while an explicit
// transition is in flight.
func (r *Reconciler) adopt(s *account.Session) {
	if !r.state.stable() {
		r.logger.Debug("ignoring session notification during transition", zap.Stringer("state", r.state))
		return
	}
	prev := r.user
	if s == nil {
		r.state = StateSignedOut
		if prev != nil {
			r.user = nil
			r.loadSeq++
			r.loading = false
			r.stopAutosave()
			r.resetDocument()
		}
		return
	}
	r.state = StateSignedIn
	r.user = s
	if prev == nil || prev.UID != s.UID {
		r.startLoad(*s)
	}
}

// reconcile re-derives a stable state from the provider after an explicit
// transition was abandoned.
func (r *Reconciler) reconcile() {
	r.state = StateUnknown
	var sess *account.Session
	if h := r.provider.Current(); h != nil {
		s := h.Session
		sess = &s
	}
	r.adopt(sess)
}

// ── Load ──

// startLoad reads the account document for sess in the background. A result
// that arrives after the user changed is dropped.
func (r *Reconciler) startLoad(sess account.Session) {
	r.loadSeq++
	seq := r.loadSeq
	r.loading = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		doc, err := r.readDocument(r.ctx, sess.UID)
		r.post(func() {
			if seq != r.loadSeq || r.user == nil || r.user.UID != sess.UID {
				r.logger.Debug("dropping stale document load", zap.String("uid", sess.UID))
				return
			}
			r.loading = false
			switch {
			case err == nil:
				r.setDocument(*doc, true)
			case errors.Is(err, docstore.ErrNotFound):
				r.setDocument(account.ProviderDefaults(&sess), false)
			default:
				r.logger.Error("load account document", zap.String("uid", sess.UID), zap.Error(err))
				r.storeError = fmt.Sprintf("Could not load your profile: %v", err)
				r.push(loadFailure(err))
			}
		})
	}()
}

func (r *Reconciler) readDocument(ctx context.Context, uid string) (*account.Document, error) {
	m, err := r.store.Get(ctx, account.Collection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read account document: %w", err)
	}
	doc := account.FromMap(m)
	return &doc, nil
}

// ── Loop helpers ──

func (r *Reconciler) setDocument(doc account.Document, persisted bool) {
	doc = doc.Clone()
	r.profile = doc.Profile
	r.links = doc.Links
	r.storeError = ""
	if persisted {
		r.savedSlug = doc.Profile.Username
	} else {
		r.savedSlug = ""
	}
}

func (r *Reconciler) resetDocument() {
	r.profile = account.DefaultProfile()
	r.links = account.PlaceholderLinks()
	r.savedSlug = ""
	r.storeError = ""
}

func (r *Reconciler) push(n Notice) {
	if n.At.IsZero() {
		n.At = r.now()
	}
	r.notices = append(r.notices, n)
	if over := len(r.notices) - r.cfg.MaxNotices; over > 0 {
		r.notices = append([]Notice(nil), r.notices[over:]...)
	}
}

// begin enters an explicit transition. Sign-in and sign-out arm the settle
// timer; deletion always runs to its final step.
func (r *Reconciler) begin(next State) uint64 {
	r.op++
	r.state = next
	if next == StateDeleting {
		r.stopSettle()
	} else {
		r.armSettle(r.op)
	}
	return r.op
}

// current reports whether op is still the transition in flight, and if so
// ends it.
func (r *Reconciler) current(op uint64) bool {
	if op != r.op || r.state.stable() {
		return false
	}
	r.stopSettle()
	return true
}

func (r *Reconciler) armSettle(op uint64) {
	r.stopSettle()
	r.settle = time.AfterFunc(r.cfg.SettleTimeout, func() {
		r.post(func() { r.settleExpired(op) })
	})
}

func (r *Reconciler) stopSettle() {
	if r.settle != nil {
		r.settle.Stop()
		r.settle = nil
	}
}

func (r *Reconciler) settleExpired(op uint64) {
	if op != r.op || r.state.stable() {
		return
	}
	r.logger.Warn("session transition did not settle", zap.Stringer("state", r.state), zap.Duration("after", r.cfg.SettleTimeout))
	if r.state == StateSigningIn {
		r.push(noticeTimedOut)
	}
	r.op++ // late results of the abandoned call are dropped
	r.exchanging = false
	r.settle = nil
	r.reconcile()
}

// record appends an audit entry, logging failures.
func (r *Reconciler) record(ctx context.Context, uid, action string, payload any) {
	if _, err := r.audit.Append(ctx, uid, action, r.clientID, payload); err != nil {
		r.logger.Warn("audit append", zap.String("action", action), zap.Error(err))
	}
}
