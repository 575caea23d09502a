package suggest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrNoBrowser is returned when no Chromium binary can be found.
var ErrNoBrowser = errors.New("browser executable not found")

// BrowserSuggester renders the page in headless Chromium and reads its title.
// A browser is launched per request.
// Every request the page makes is checked against the same public-address
// rule as the HTML suggester.
type BrowserSuggester struct {
	timeout  time.Duration
	logger   *zap.Logger
	lookPath func() (string, bool)
	resolver resolver
}

func NewBrowserSuggester(logger *zap.Logger) *BrowserSuggester {
	return &BrowserSuggester{
		timeout:  30 * time.Second,
		logger:   logger,
		lookPath: launcher.LookPath,
		resolver: net.DefaultResolver,
	}
}

func (s *BrowserSuggester) Suggest(ctx context.Context, rawURL string) (title string, err error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	if err := s.checkURL(ctx, target); err != nil {
		return "", err
	}
	path, ok := s.lookPath()
	if !ok {
		return "", ErrNoBrowser
	}

	l := launcher.New().Bin(path).Headless(true)
	defer l.Cleanup()
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			s.logger.Warn("close browser", zap.Error(cerr))
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if err := s.checkURL(pageCtx, h.Request.URL().String()); err != nil {
			s.logger.Debug("blocked browser request", zap.Error(err))
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return "", fmt.Errorf("install request filter: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.Navigate(target); err != nil {
		return "", fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("load %s timed out: %w", target, pageCtx.Err())
		}
		return "", fmt.Errorf("wait for page load: %w", err)
	}

	if found, el, err := page.Has(`meta[property="og:title"]`); err == nil && found {
		if content, err := el.Attribute("content"); err == nil && content != nil {
			title = cleanTitle(*content)
		}
	}
	if title == "" {
		info, err := page.Info()
		if err != nil {
			return "", fmt.Errorf("read page info: %w", err)
		}
		title = cleanTitle(strings.TrimSpace(info.Title))
	}
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// checkURL rejects http(s) URLs whose host is not public. Other schemes
// (data:, about:) never leave the browser.
func (s *BrowserSuggester) checkURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return checkHost(ctx, s.resolver, u.Hostname())
}
