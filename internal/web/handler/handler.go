// Package handler serves the LinkHub editor, public pages and JSON API.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/health"
	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/publicpage"
	"github.com/jmerrifield20/LinkHub/internal/session"
)

// Reconciler is the per-browser session state machine, satisfied by
// *session.Reconciler.
type Reconciler interface {
	Snapshot() (session.Snapshot, error)
	TakeNotices() ([]session.Notice, error)
	ShareURL() (string, error)
	SessionToken() string
	BeginSignIn() error
	AbortSignIn(err error) error
	SignInWithGoogle(ctx context.Context, cred identity.Credential) error
	SignOutUser(ctx context.Context) error
	DeleteUserAccount(ctx context.Context) (*session.DeletionReport, error)
	UpdateProfile(p account.Profile) error
	AddLink(title, url string) (account.Link, error)
	UpdateLink(id, title, url string) error
	RemoveLink(id string) error
	Save(ctx context.Context) error
}

var _ Reconciler = (*session.Reconciler)(nil)

// Sessions resolves the reconciler for a browser client.
type Sessions interface {
	Session(ctx context.Context, clientID, handleToken string) Reconciler
}

// RegistrySessions adapts a *session.Registry to Sessions.
type RegistrySessions struct {
	Registry *session.Registry
}

func (s RegistrySessions) Session(ctx context.Context, clientID, handleToken string) Reconciler {
	return s.Registry.Get(ctx, clientID, handleToken)
}

// consentURLer builds the provider consent URL, satisfied by *identity.Service.
type consentURLer interface {
	AuthCodeURL(clientID string) (string, error)
}

// pageLoader is satisfied by *publicpage.Loader.
type pageLoader interface {
	Load(ctx context.Context, raw string) (*publicpage.Page, error)
}

// titleSuggester is satisfied by every suggest backend.
type titleSuggester interface {
	Suggest(ctx context.Context, rawURL string) (string, error)
}

// readiness is satisfied by *health.Checker.
type readiness interface {
	Ready() bool
	Statuses() []health.DependencyStatus
}

// Options configures a Handler.
type Options struct {
	Sessions  Sessions
	Consent   consentURLer
	Pages     pageLoader
	Suggester titleSuggester
	Health    readiness
	Cookies   CookieConfig
	Logger    *zap.Logger
}

// CookieConfig controls the cookies the handler issues.
type CookieConfig struct {
	Secure     bool
	SessionTTL time.Duration
}

// Handler mounts every LinkHub route.
type Handler struct {
	sessions  Sessions
	consent   consentURLer
	pages     pageLoader
	suggester titleSuggester
	health    readiness
	cookies   CookieConfig
	views     *views
	logger    *zap.Logger
}

// New creates a Handler. It fails only if the embedded templates do not parse.
func New(opts Options) (*Handler, error) {
	v, err := loadViews()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cookies.SessionTTL <= 0 {
		opts.Cookies.SessionTTL = 14 * 24 * time.Hour
	}
	return &Handler{
		sessions:  opts.Sessions,
		consent:   opts.Consent,
		pages:     opts.Pages,
		suggester: opts.Suggester,
		health:    opts.Health,
		cookies:   opts.Cookies,
		views:     v,
		logger:    opts.Logger,
	}, nil
}

// Register mounts all routes on r. ClientID must run before the session
// routes; Register installs it on the groups that need it.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", MetricsHandler())

	r.GET("/u/:username", h.PublicPage)

	web := r.Group("/", h.ClientID())
	{
		web.GET("/", h.Editor)
		web.POST("/theme", h.ToggleTheme)

		web.GET("/auth/google", h.BeginGoogle)
		web.GET("/auth/google/callback", h.GoogleCallback)
		web.POST("/auth/signout", h.SignOut)
		web.POST("/account/delete", h.DeleteAccount)

		web.POST("/profile", h.UpdateProfile)
		web.POST("/links", h.AddLink)
		web.POST("/links/:id", h.UpdateLink)
		web.POST("/links/:id/delete", h.RemoveLink)
		web.POST("/suggest-title", h.SuggestLinkTitle)
		web.POST("/save", h.Save)
	}

	api := r.Group("/api/v1")
	{
		api.GET("/pages/:slug", h.GetPage)
		me := api.Group("/", h.ClientID())
		me.POST("/suggest-title", h.SuggestTitle)
		me.GET("/me", h.Me)
		me.DELETE("/me", h.DeleteMe)
		me.GET("/share", h.Share)
	}
}

// session returns the reconciler for the current request's client.
func (h *Handler) session(c *gin.Context) Reconciler {
	token, _ := c.Cookie(SessionCookie)
	return h.sessions.Session(c.Request.Context(), clientIDFrom(c), token)
}
