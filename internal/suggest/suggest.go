// Package suggest proposes display titles for links added to a profile.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendGenAI   = "genai"
	BackendHTML    = "html"
	BackendBrowser = "browser"
	BackendOff     = "off"
)

var (
	// ErrURLRequired is returned when no URL is given.
	ErrURLRequired = errors.New("url is required")
	// ErrInvalidURL is returned for URLs that are not absolute http(s).
	ErrInvalidURL = errors.New("invalid url")
	// ErrDisabled is returned by the off backend.
	ErrDisabled = errors.New("title suggestion is disabled")
	// ErrNoTitle is returned when the backend could not produce a title.
	ErrNoTitle = errors.New("no title found")
)

// Suggester returns a concise title for the page at a URL.
type Suggester interface {
	Suggest(ctx context.Context, rawURL string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend     string
	GenAIAPIKey string
	GenAIModel  string
	UserAgent   string
}

// New builds the Suggester named by cfg.Backend. An empty backend is "html".
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Suggester, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendHTML:
		return NewHTMLSuggester(nil, cfg.UserAgent, logger), nil
	case BackendGenAI:
		return NewGenAISuggester(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, logger)
	case BackendBrowser:
		return NewBrowserSuggester(logger), nil
	case BackendOff:
		return Off{}, nil
	default:
		return nil, fmt.Errorf("unknown suggest backend %q", cfg.Backend)
	}
}

// Off rejects every request with ErrDisabled.
type Off struct{}

func (Off) Suggest(_ context.Context, rawURL string) (string, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	return "", ErrDisabled
}

// ValidateURL trims rawURL and checks it is an absolute http(s) URL.
func ValidateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrURLRequired
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u.String(), nil
}

// cleanTitle collapses whitespace and strips surrounding quotes a model may add.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "Title:")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`*")
	const maxLen = 120
	if r := []rune(s); len(r) > maxLen {
		s = strings.TrimSpace(string(r[:maxLen]))
	}
	return s
}
