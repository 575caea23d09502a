package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderGoogle is the provider name stored on identity records.
const ProviderGoogle = "google"

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Config holds the Google OAuth client and session settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// RecentLoginWindow bounds how long after a sign-in the identity record
	// may be deleted (default: 5 minutes).
	RecentLoginWindow time.Duration

	// Endpoint, UserInfoURL and HTTPClient default to Google's endpoints and
	// http.DefaultClient.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// Service is the server-wide Google identity provider. Per-client state lives
// in Auth values created by NewAuth or Restore.
type Service struct {
	oauth       *oauth2.Config // nil when no client credentials are configured
	userInfoURL string
	httpClient  *http.Client
	tokens      *TokenIssuer
	records     Repository
	recentLogin time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates a Service. Missing client credentials leave the service
// unavailable rather than failing startup.
func NewService(cfg Config, tokens *TokenIssuer, records Repository, logger *zap.Logger) *Service {
	s := &Service{
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
		tokens:      tokens,
		records:     records,
		recentLogin: cfg.RecentLoginWindow,
		now:         time.Now,
		logger:      logger,
	}
	if s.userInfoURL == "" {
		s.userInfoURL = googleUserInfoURL
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.recentLogin <= 0 {
		s.recentLogin = 5 * time.Minute
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		endpoint := cfg.Endpoint
		if endpoint.TokenURL == "" {
			endpoint = google.Endpoint
		}
		s.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		}
	} else {
		logger.Warn("google oauth not configured; sign-in disabled")
	}
	return s
}

// Available reports whether Google sign-in is configured.
func (s *Service) Available() bool { return s.oauth != nil }

// AuthCodeURL returns the consent URL for a sign-in started by clientID.
func (s *Service) AuthCodeURL(clientID string) (string, error) {
	if !s.Available() {
		return "", newError(CodeInvalidAPIKey, "google oauth client not configured")
	}
	state, err := s.tokens.IssueState(clientID)
	if err != nil {
		return "", &Error{Code: CodeInternal, Err: err}
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// NewAuth returns a signed-out Auth for clientID.
func (s *Service) NewAuth(clientID string) *Auth {
	return &Auth{
		svc:      s,
		clientID: clientID,
		subs:     make(map[uint64]func(*account.Session)),
	}
}

// Restore returns an Auth for clientID, signed in when token is a valid
// session handle whose identity record still exists.
func (s *Service) Restore(ctx context.Context, clientID, token string) *Auth {
	a := s.NewAuth(clientID)
	if token == "" {
		return a
	}
	claims, err := s.tokens.VerifySession(token)
	if err != nil {
		s.logger.Debug("discarding session handle", zap.String("client_id", clientID), zap.Error(err))
		return a
	}
	rec, err := s.records.Get(ctx, claims.Subject)
	if err != nil {
		s.logger.Debug("session handle without identity record", zap.String("uid", claims.Subject), zap.Error(err))
		return a
	}
	a.current = &Handle{
		Session:  rec.Session(),
		Token:    token,
		AuthTime: time.Unix(claims.AuthTime, 0).UTC(),
	}
	return a
}

// exchange turns a callback credential into an upserted identity record.
func (s *Service) exchange(ctx context.Context, clientID string, cred Credential) (*Record, error) {
	if !s.Available() {
		return nil, newError(CodeInvalidAPIKey, "google oauth client not configured")
	}
	if cred.Error != "" {
		return nil, classifyCallbackError(cred.Error)
	}
	gotClient, err := s.tokens.VerifyState(cred.State)
	if err != nil || gotClient != clientID {
		return nil, newError(CodeCancelledPopupRequest, "sign-in request superseded or expired")
	}
	if cred.Code == "" {
		return nil, newError(CodePopupBlocked, "callback carried no authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.Exchange(ctx, cred.Code)
	if err != nil {
		s.logger.Error("oauth code exchange", zap.String("provider", ProviderGoogle), zap.Error(err))
		return nil, classifyExchangeError(err)
	}

	info, err := s.fetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		s.logger.Error("fetch oauth user info", zap.String("provider", ProviderGoogle), zap.Error(err))
		return nil, &Error{Code: CodeInternal, Err: err}
	}

	rec, err := s.records.Upsert(ctx, ProviderGoogle, *info, s.now())
	if err != nil {
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	return rec, nil
}

// ─── OAuth user-info helpers ──────────────────────────────────────────────────

func (s *Service) fetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api get %s: %w", s.userInfoURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse google user info: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("google user info has no id")
	}
	return &UserInfo{
		Subject:     info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}, nil
}
