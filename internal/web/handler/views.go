package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

type views struct {
	tmpl *template.Template
}

func loadViews() (*views, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"preview": newPreview,
		"initial": initial,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &views{tmpl: tmpl}, nil
}

// previewData drives the shared preview template used by the editor and
// public page.
type previewData struct {
	Profile   account.Profile
	Links     []account.Link
	ShowTitle bool
}

func newPreview(p account.Profile, links []account.Link, showTitle bool) previewData {
	return previewData{Profile: p, Links: links, ShowTitle: showTitle}
}

// initial is the avatar fallback letter.
func initial(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return "U"
	}
	return strings.ToUpper(string([]rune(username)[:1]))
}

type editorView struct {
	Theme      string
	Snapshot   session.Snapshot
	Notices    []session.Notice
	Refreshing bool
	Draft      linkDraft
}

// linkDraft refills the add-link form after a title suggestion.
type linkDraft struct {
	Title string
	URL   string
	Error string
}

type publicView struct {
	Theme   string
	Slug    string
	Profile account.Profile
	Links   []account.Link
}

type problemView struct {
	Theme   string
	Title   string
	Message string
}

// render executes a template into a buffer so template errors become a 500
// instead of a half-written page.
func (h *Handler) render(c *gin.Context, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.views.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template", zap.String("template", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
