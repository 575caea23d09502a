package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/health"
	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/publicpage"
	"github.com/jmerrifield20/LinkHub/internal/session"
	"github.com/jmerrifield20/LinkHub/internal/suggest"
	"github.com/jmerrifield20/LinkHub/internal/web/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── Stubs ────────────────────────────────────────────────────────────────

type stubReconciler struct {
	snap    session.Snapshot
	snapErr error
	notices []session.Notice
	token   string

	beginErr  error
	aborted   error
	cred      identity.Credential
	signInErr error
	signedOut bool
	report    *session.DeletionReport
	deleteErr error
	profile   account.Profile
	added     []account.Link
	removed   []string
	saved     int
	editErr   error
}

func (r *stubReconciler) Snapshot() (session.Snapshot, error) { return r.snap, r.snapErr }
func (r *stubReconciler) TakeNotices() ([]session.Notice, error) {
	n := r.notices
	r.notices = nil
	return n, nil
}
func (r *stubReconciler) ShareURL() (string, error) { return r.snap.ShareURL, r.snapErr }
func (r *stubReconciler) SessionToken() string      { return r.token }
func (r *stubReconciler) BeginSignIn() error        { return r.beginErr }
func (r *stubReconciler) AbortSignIn(err error) error {
	r.aborted = err
	return nil
}
func (r *stubReconciler) SignInWithGoogle(_ context.Context, cred identity.Credential) error {
	r.cred = cred
	if r.signInErr == nil {
		r.token = "tok-u1"
	}
	return r.signInErr
}
func (r *stubReconciler) SignOutUser(context.Context) error {
	r.signedOut = true
	r.token = ""
	return nil
}
func (r *stubReconciler) DeleteUserAccount(context.Context) (*session.DeletionReport, error) {
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}
	r.token = ""
	return r.report, nil
}
func (r *stubReconciler) UpdateProfile(p account.Profile) error {
	r.profile = p
	return r.editErr
}
func (r *stubReconciler) AddLink(title, u string) (account.Link, error) {
	l := account.Link{ID: "1", Title: title, URL: u}
	r.added = append(r.added, l)
	return l, r.editErr
}
func (r *stubReconciler) UpdateLink(string, string, string) error { return r.editErr }
func (r *stubReconciler) RemoveLink(id string) error {
	r.removed = append(r.removed, id)
	return r.editErr
}
func (r *stubReconciler) Save(context.Context) error {
	r.saved++
	return r.editErr
}

type stubSessions struct {
	rec       *stubReconciler
	clientIDs []string
	tokens    []string
}

func (s *stubSessions) Session(_ context.Context, clientID, token string) handler.Reconciler {
	s.clientIDs = append(s.clientIDs, clientID)
	s.tokens = append(s.tokens, token)
	return s.rec
}

type stubConsent struct {
	err error
}

func (s stubConsent) AuthCodeURL(clientID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://accounts.example/auth?state=" + clientID, nil
}

type stubPages struct {
	page *publicpage.Page
	err  error
}

func (s stubPages) Load(context.Context, string) (*publicpage.Page, error) { return s.page, s.err }

type stubSuggester struct {
	title string
	err   error
}

func (s stubSuggester) Suggest(_ context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", suggest.ErrURLRequired
	}
	return s.title, s.err
}

type stubHealth struct{ ready bool }

func (s stubHealth) Ready() bool { return s.ready }
func (s stubHealth) Statuses() []health.DependencyStatus {
	return []health.DependencyStatus{{Name: "store", Status: health.StatusHealthy}}
}

type fixture struct {
	rec      *stubReconciler
	sessions *stubSessions
	router   *gin.Engine
}

func newFixture(t *testing.T, mutate func(*handler.Options)) *fixture {
	t.Helper()
	rec := &stubReconciler{snap: session.Snapshot{State: session.StateSignedOut, StateName: "signed-out"}}
	sessions := &stubSessions{rec: rec}
	opts := handler.Options{
		Sessions:  sessions,
		Consent:   stubConsent{},
		Pages:     stubPages{err: publicpage.ErrNotFound},
		Suggester: stubSuggester{title: "Suggested"},
		Health:    stubHealth{ready: true},
		Logger:    zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h, err := handler.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := gin.New()
	h.Register(r)
	return &fixture{rec: rec, sessions: sessions, router: r}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func form(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signedInSnapshot() session.Snapshot {
	return session.Snapshot{
		State:     session.StateSignedIn,
		StateName: "signed-in",
		User:      &account.Session{UID: "u1", DisplayName: "Ada"},
		Profile:   account.Profile{Username: "ada", Bio: "Gardener"},
		Links:     []account.Link{{ID: "1", Title: "Garden", URL: "https://garden.example"}},
		ShareURL:  "https://linkhub.example/u/ada",
	}
}

// ── Editor ───────────────────────────────────────────────────────────────

func TestEditor_signedOutPromptsSignIn(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Sign in with Google") {
		t.Errorf("expected sign-in prompt, got %s", w.Body.String())
	}
	c := cookie(w, handler.ClientCookie)
	if c == nil || c.Value == "" || !c.HttpOnly {
		t.Fatalf("expected http-only client cookie, got %+v", c)
	}
	if f.sessions.clientIDs[0] != c.Value {
		t.Errorf("session looked up with %q, cookie is %q", f.sessions.clientIDs[0], c.Value)
	}
}

func TestEditor_reusesClientCookie(t *testing.T) {
	f := newFixture(t, nil)
	const id = "6f1c1f55-59b4-4a6c-9d0b-0f3c2f0a9d11"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: handler.ClientCookie, Value: id})
	req.AddCookie(&http.Cookie{Name: handler.SessionCookie, Value: "tok-u1"})
	f.rec.token = "tok-u1"

	w := f.do(req)
	if cookie(w, handler.ClientCookie) != nil {
		t.Error("existing client cookie must not be reissued")
	}
	if f.sessions.clientIDs[0] != id || f.sessions.tokens[0] != "tok-u1" {
		t.Errorf("unexpected lookup %v %v", f.sessions.clientIDs, f.sessions.tokens)
	}
}

func TestEditor_signedInRendersPreviewAndNotices(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.snap = signedInSnapshot()
	f.rec.notices = []session.Notice{{Title: "Changes Saved!", Variant: session.VariantDefault}}

	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	for _, want := range []string{"Live Preview", "@ada", "Gardener", "https://garden.example", "Changes Saved!", "https://linkhub.example/u/ada"} {
		if !strings.Contains(body, want) {
			t.Errorf("editor missing %q", want)
		}
	}
	if f.rec.notices != nil {
		t.Error("notices should be drained on render")
	}
}

func TestEditor_formsForwardToReconciler(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(form("/profile", url.Values{"username": {"Ada Lovelace"}, "bio": {"hi"}, "avatarUrl": {" https://img.example/a.png "}}))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if f.rec.profile.Username != "Ada Lovelace" || f.rec.profile.AvatarURL != "https://img.example/a.png" {
		t.Errorf("unexpected profile %+v", f.rec.profile)
	}

	f.do(form("/links", url.Values{"title": {"Blog"}, "url": {"https://blog.example"}}))
	if len(f.rec.added) != 1 || f.rec.added[0].Title != "Blog" {
		t.Errorf("unexpected links %+v", f.rec.added)
	}

	f.do(form("/links/42/delete", nil))
	if len(f.rec.removed) != 1 || f.rec.removed[0] != "42" {
		t.Errorf("unexpected removals %v", f.rec.removed)
	}

	f.rec.editErr = session.ErrNoSession
	w = f.do(form("/save", nil))
	if w.Code != http.StatusSeeOther || f.rec.saved != 1 {
		t.Errorf("save: got %d, saved=%d", w.Code, f.rec.saved)
	}
}

func TestEditor_suggestTitleFillsAddLinkForm(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(form("/suggest-title", url.Values{"url": {"https://garden.example"}}))
	if w.Header().Get("Location") != "/" {
		t.Fatalf("signed out: expected redirect to /, got %q", w.Header().Get("Location"))
	}

	f.rec.snap = signedInSnapshot()
	w = f.do(form("/suggest-title", url.Values{"title": {""}, "url": {"https://garden.example"}}))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Query().Get("title") != "Suggested" || loc.Query().Get("url") != "https://garden.example" {
		t.Errorf("unexpected draft %q", loc.RawQuery)
	}

	body := f.do(httptest.NewRequest(http.MethodGet, loc.String(), nil)).Body.String()
	for _, want := range []string{`value="Suggested"`, `formaction="/suggest-title"`} {
		if !strings.Contains(body, want) {
			t.Errorf("editor missing %q", want)
		}
	}
}

func TestEditor_suggestTitleFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, func(o *handler.Options) { o.Suggester = stubSuggester{err: suggest.ErrNoTitle} })
	f.rec.snap = signedInSnapshot()

	w := f.do(form("/suggest-title", url.Values{"title": {"Mine"}, "url": {"https://garden.example"}}))
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	q := loc.Query()
	if q.Get("title") != "Mine" || q.Get("suggest_error") != "No title found on that page." {
		t.Errorf("unexpected draft %q", loc.RawQuery)
	}

	w = f.do(form("/suggest-title", url.Values{"url": {""}}))
	loc, _ = url.Parse(w.Header().Get("Location"))
	if got := loc.Query().Get("suggest_error"); got != "Please enter a URL to suggest a title." {
		t.Errorf("empty url: got %q", got)
	}
}

func TestToggleTheme(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(form("/theme", nil))
	if c := cookie(w, handler.ThemeCookie); c == nil || c.Value != handler.ThemeDark {
		t.Fatalf("expected dark theme cookie, got %+v", c)
	}

	req := form("/theme", nil)
	req.AddCookie(&http.Cookie{Name: handler.ThemeCookie, Value: handler.ThemeDark})
	w = f.do(req)
	if c := cookie(w, handler.ThemeCookie); c == nil || c.Value != handler.ThemeLight {
		t.Fatalf("expected light theme cookie, got %+v", c)
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────

func TestBeginGoogle_redirectsToConsent(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	want := "https://accounts.example/auth?state=" + f.sessions.clientIDs[0]
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location: got %q, want %q", got, want)
	}
}

func TestBeginGoogle_rejected(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.beginErr = session.ErrUnavailable
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Errorf("expected redirect home, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestBeginGoogle_consentErrorAbortsSignIn(t *testing.T) {
	boom := errors.New("sign state")
	f := newFixture(t, func(o *handler.Options) { o.Consent = stubConsent{err: boom} })
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	if w.Header().Get("Location") != "/" {
		t.Errorf("expected redirect home, got %q", w.Header().Get("Location"))
	}
	if !errors.Is(f.rec.aborted, boom) {
		t.Errorf("expected sign-in aborted with %v, got %v", boom, f.rec.aborted)
	}
}

func TestGoogleCallback_setsSessionCookie(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=xyz", nil))

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d", w.Code)
	}
	if f.rec.cred.Code != "abc" || f.rec.cred.State != "xyz" {
		t.Errorf("unexpected credential %+v", f.rec.cred)
	}
	if c := cookie(w, handler.SessionCookie); c == nil || c.Value != "tok-u1" {
		t.Errorf("expected session cookie, got %+v", c)
	}
}

func TestGoogleCallback_errorPassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.signInErr = &identity.Error{Code: identity.CodePopupClosedByUser}
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied", nil))

	if f.rec.cred.Error != "access_denied" {
		t.Errorf("unexpected credential %+v", f.rec.cred)
	}
	if cookie(w, handler.SessionCookie) != nil {
		t.Error("no session cookie expected after failure")
	}
}

func TestSignOut_clearsSessionCookie(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.token = "tok-u1"
	req := form("/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: handler.SessionCookie, Value: "tok-u1"})

	w := f.do(req)
	if !f.rec.signedOut {
		t.Fatal("expected sign-out")
	}
	if c := cookie(w, handler.SessionCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected cleared session cookie, got %+v", c)
	}
}

func TestDeleteMe(t *testing.T) {
	tests := []struct {
		name       string
		report     *session.DeletionReport
		err        error
		wantStatus int
	}{
		{"deleted", &session.DeletionReport{Status: session.DeletionDeleted}, nil, http.StatusOK},
		{"partial", &session.DeletionReport{Status: session.DeletionPartial}, nil, http.StatusOK},
		{"aborted", &session.DeletionReport{Status: session.DeletionAborted}, nil, http.StatusInternalServerError},
		{"no session", nil, session.ErrNoSession, http.StatusUnauthorized},
		{"busy", nil, session.ErrBusy, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.rec.report, f.rec.deleteErr = tc.report, tc.err
			w := f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/me", nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, w.Code, w.Body.String())
			}
			if tc.report != nil {
				var got session.DeletionReport
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if got.Status != tc.report.Status {
					t.Errorf("status: got %q, want %q", got.Status, tc.report.Status)
				}
			}
		})
	}
}

// ── Public pages ─────────────────────────────────────────────────────────

func TestPublicPage(t *testing.T) {
	page := &publicpage.Page{
		Slug:    "ada",
		Profile: account.Profile{Username: "ada", Bio: "Gardener"},
		Links:   []account.Link{{ID: "1", Title: "Garden", URL: "https://garden.example"}},
	}
	tests := []struct {
		name       string
		pages      stubPages
		wantStatus int
		want       string
	}{
		{"found", stubPages{page: page}, http.StatusOK, "@ada"},
		{"not found", stubPages{err: publicpage.ErrNotFound}, http.StatusNotFound, "Profile Not Found"},
		{"missing", stubPages{err: publicpage.ErrMissingUsername}, http.StatusBadRequest, "Username not found in URL."},
		{"store error", stubPages{err: errors.New("permission denied")}, http.StatusInternalServerError, "permission denied"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(o *handler.Options) { o.Pages = tc.pages })
			w := f.do(httptest.NewRequest(http.MethodGet, "/u/Ada", nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, tc.want) {
				t.Errorf("body missing %q", tc.want)
			}
			if strings.Contains(body, "Live Preview") {
				t.Error("public page must not show the preview title")
			}
		})
	}
}

func TestGetPageJSON(t *testing.T) {
	page := &publicpage.Page{Slug: "ada", Profile: account.Profile{Username: "ada"}, Links: []account.Link{}}
	f := newFixture(t, func(o *handler.Options) { o.Pages = stubPages{page: page} })

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/pages/ada", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got publicpage.Page
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Slug != "ada" || got.Profile.Username != "ada" {
		t.Errorf("unexpected page %+v", got)
	}

	f = newFixture(t, nil)
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/pages/nobody", nil)); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ── API ──────────────────────────────────────────────────────────────────

func suggestRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/suggest-title", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSuggestTitle(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(suggestRequest(`{"url":"https://garden.example"}`)); w.Code != http.StatusUnauthorized {
		t.Fatalf("signed out: expected 401, got %d %s", w.Code, w.Body.String())
	}

	f.rec.snap = signedInSnapshot()
	w := f.do(suggestRequest(`{"url":"https://garden.example"}`))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"title":"Suggested"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = f.do(suggestRequest(`{"url":""}`))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "URL Required") ||
		!strings.Contains(w.Body.String(), "Please enter a URL to suggest a title.") {
		t.Errorf("expected URL Required, got %d %s", w.Code, w.Body.String())
	}
}

func TestSuggestTitle_blockedAddress(t *testing.T) {
	f := newFixture(t, func(o *handler.Options) {
		o.Suggester = stubSuggester{err: fmt.Errorf("fetch: %w", suggest.ErrBlockedAddress)}
	})
	f.rec.snap = signedInSnapshot()

	w := f.do(suggestRequest(`{"url":"http://127.0.0.1/admin"}`))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "url not allowed") {
		t.Errorf("expected 400 url not allowed, got %d %s", w.Code, w.Body.String())
	}
}

func TestMeAndShare(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/share", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("signed out share: expected 404, got %d", w.Code)
	}

	f.rec.snap = signedInSnapshot()
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/share", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "https://linkhub.example/u/ada") {
		t.Errorf("unexpected share %d %s", w.Code, w.Body.String())
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	var snap session.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.StateName != "signed-in" || snap.Profile.Username != "ada" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	f.rec.snapErr = session.ErrClosed
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed session: expected 503, got %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Errorf("healthz: %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)); w.Code != http.StatusOK {
		t.Errorf("readyz: %d", w.Code)
	}

	f = newFixture(t, func(o *handler.Options) { o.Health = stubHealth{ready: false} })
	w := f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("readyz degraded: %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 0.001, 1))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}
}
