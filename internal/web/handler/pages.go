package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/publicpage"
	"github.com/jmerrifield20/LinkHub/internal/session"
)

// Editor handles GET /: the signed-in editor or the sign-in prompt.
func (h *Handler) Editor(c *gin.Context) {
	rec := h.session(c)
	snap, err := rec.Snapshot()
	if err != nil {
		h.logger.Error("editor snapshot", zap.Error(err))
		h.render(c, http.StatusServiceUnavailable, "problem.html", problemView{
			Theme:   theme(c),
			Title:   "Session Unavailable",
			Message: "Please reload the page.",
		})
		return
	}
	notices, _ := rec.TakeNotices()
	h.syncSessionCookie(c, rec)

	h.render(c, http.StatusOK, "editor.html", editorView{
		Theme:      theme(c),
		Snapshot:   snap,
		Notices:    notices,
		Refreshing: snap.AuthLoading || snap.IsLoading || snap.State == session.StateSigningIn,
		Draft: linkDraft{
			Title: c.Query("title"),
			URL:   c.Query("url"),
			Error: c.Query("suggest_error"),
		},
	})
}

// PublicPage handles GET /u/:username.
func (h *Handler) PublicPage(c *gin.Context) {
	page, err := h.pages.Load(c.Request.Context(), c.Param("username"))
	if err != nil {
		status, view := h.pageProblem(c, err)
		h.render(c, status, "problem.html", view)
		return
	}
	h.render(c, http.StatusOK, "public.html", publicView{
		Theme:   theme(c),
		Slug:    page.Slug,
		Profile: page.Profile,
		Links:   page.Links,
	})
}

func (h *Handler) pageProblem(c *gin.Context, err error) (int, problemView) {
	slug := publicpage.NormalizeSlug(c.Param("username"))
	view := problemView{Theme: theme(c), Title: "Profile Not Found"}
	switch {
	case errors.Is(err, publicpage.ErrMissingUsername):
		view.Message = msgMissingUsername
		return http.StatusBadRequest, view
	case errors.Is(err, publicpage.ErrNotFound):
		view.Message = fmt.Sprintf("Profile for %q not found. This user may not exist or hasn't set up their LinkHub page yet.", slug)
		return http.StatusNotFound, view
	default:
		h.logger.Error("load public page", zap.String("slug", slug), zap.Error(err))
		view.Message = fmt.Sprintf("Could not load profile data. Error: %s.", err)
		return http.StatusInternalServerError, view
	}
}
