package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

var (
	// ErrNotFound is returned by GetPage when no account has the slug.
	ErrNotFound = errors.New("page not found")
	// ErrURLRequired is returned by SuggestTitle for an empty URL.
	ErrURLRequired = errors.New("url is required")
	// ErrUnauthorized is returned by calls that need a signed-in session
	// when none was sent or the server rejected it.
	ErrUnauthorized = errors.New("sign-in required")
)

// SessionCookie is the cookie carrying a LinkHub session handle.
const SessionCookie = "linkhub_session"

// Profile is the public part of an account.
type Profile struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl"`
}

// Link is one outbound link, in display order.
type Link struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Page is a public link page.
type Page struct {
	Slug    string  `json:"slug"`
	Profile Profile `json:"profile"`
	Links   []Link  `json:"links"`
}

// Dependency is one backing service reported by the readiness endpoint.
type Dependency struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Failures  int    `json:"failures"`
	LastError string `json:"lastError,omitempty"`
}

// Readiness is the decoded /readyz response.
type Readiness struct {
	Status       string       `json:"status"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Ready reports whether the server considers itself ready.
func (r *Readiness) Ready() bool { return r.Status == "ready" }

// Client is the LinkHub SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	session    string
	cache      *pageCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory page caching with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl > 0 {
			c.cache = newPageCache(ttl)
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithSession sends a session handle (the linkhub_session cookie value from a
// signed-in browser) with every request. SuggestTitle requires it.
func WithSession(token string) Option {
	return func(c *Client) error {
		c.session = strings.TrimSpace(token)
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the LinkHub server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "linkhub-go-client",
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Slugify converts a display name to the slug form used in page URLs.
func Slugify(name string) string { return account.Slugify(name) }

// PageURL returns the browser URL of the page for username.
func (c *Client) PageURL(username string) string {
	return c.baseURL + "/u/" + url.PathEscape(Slugify(username))
}

// GetPage fetches the public page for slug.
func (c *Client) GetPage(ctx context.Context, slug string) (*Page, error) {
	slug = Slugify(slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: empty slug", ErrNotFound)
	}
	if c.cache != nil {
		if p, ok := c.cache.get(slug); ok {
			return p, nil
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/pages/"+url.PathEscape(slug), nil)
	if err != nil {
		return nil, err
	}
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	case status >= 300:
		return nil, serverError(status, body)
	}

	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if c.cache != nil {
		c.cache.set(slug, &p)
	}
	return &p, nil
}

// SuggestTitle asks the server for a title for the link at rawURL.
func (c *Client) SuggestTitle(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", ErrURLRequired
	}
	payload, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/suggest-title", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.doStatusBody(req)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if status >= 300 {
		return "", serverError(status, body)
	}
	var out struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode suggestion: %w", err)
	}
	return out.Title, nil
}

// Readiness fetches the server's readiness report. A degraded server is not
// an error; check Ready on the result.
func (c *Client) Readiness(ctx context.Context) (*Readiness, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return nil, err
	}
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 && status != http.StatusServiceUnavailable {
		return nil, serverError(status, body)
	}
	var r Readiness
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode readiness: %w", err)
	}
	return &r, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.session})
	}
	return req, nil
}

// doStatusBody is a lower-level HTTP call that returns (statusCode, body, error)
// without failing on 4xx responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// serverError extracts the {"error": ...} message when present.
func serverError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server error %d: %s", status, e.Error)
	}
	return fmt.Errorf("server error %d: %s", status, strings.TrimSpace(string(body)))
}

// --- simple in-memory page cache ---

type cacheEntry struct {
	page      *Page
	expiresAt time.Time
}

type pageCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newPageCache(ttl time.Duration) *pageCache {
	return &pageCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (pc *pageCache) get(key string) (*Page, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	e, ok := pc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.page, true
}

func (pc *pageCache) set(key string, p *Page) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[key] = &cacheEntry{page: p, expiresAt: time.Now().Add(pc.ttl)}
}
