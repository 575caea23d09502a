package suggest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const maxBodyBytes = 1 << 20

// HTMLSuggester fetches the page and reads og:title or <title>.
type HTMLSuggester struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTMLSuggester returns an HTML suggester. A nil client gets a 10s timeout
// and refuses to connect to non-public addresses, redirects included.
func NewHTMLSuggester(client *http.Client, userAgent string, logger *zap.Logger) *HTMLSuggester {
	if client == nil {
		client = newPublicClient(10 * time.Second)
	}
	if userAgent == "" {
		userAgent = "LinkHub/1.0 (+title-suggest)"
	}
	return &HTMLSuggester{client: client, userAgent: userAgent, logger: logger}
}

func (s *HTMLSuggester) Suggest(ctx context.Context, rawURL string) (string, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	title, err := ExtractTitle(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if title == "" {
		s.logger.Debug("page has no title", zap.String("url", target))
		return "", ErrNoTitle
	}
	return title, nil
}

// ExtractTitle returns og:title when present, else the first <title> text.
func ExtractTitle(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var ogTitle, title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ogTitle != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop := getAttr(n, "property")
				if prop == "" {
					prop = getAttr(n, "name")
				}
				if strings.EqualFold(prop, "og:title") {
					ogTitle = cleanTitle(getAttr(n, "content"))
				}
			case "title":
				if title == "" && n.FirstChild != nil {
					title = cleanTitle(textOf(n))
				}
			case "svg", "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if ogTitle != "" {
		return ogTitle, nil
	}
	return title, nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
