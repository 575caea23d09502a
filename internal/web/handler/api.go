package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/publicpage"
	"github.com/jmerrifield20/LinkHub/internal/suggest"
)

// Me handles GET /api/v1/me: the session snapshot, draining notices.
func (h *Handler) Me(c *gin.Context) {
	rec := h.session(c)
	snap, err := rec.Snapshot()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	snap.Notices, _ = rec.TakeNotices()
	h.syncSessionCookie(c, rec)
	c.JSON(http.StatusOK, snap)
}

// Share handles GET /api/v1/share.
func (h *Handler) Share(c *gin.Context) {
	rec := h.session(c)
	snap, err := rec.Snapshot()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !snap.SignedIn() || snap.ShareURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no public page yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": snap.ShareURL})
}

// GetPage handles GET /api/v1/pages/:slug.
func (h *Handler) GetPage(c *gin.Context) {
	page, err := h.pages.Load(c.Request.Context(), c.Param("slug"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, page)
	case errors.Is(err, publicpage.ErrMissingUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingUsername})
	case errors.Is(err, publicpage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
	default:
		h.logger.Error("load public page", zap.String("slug", c.Param("slug")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load page"})
	}
}

// User-facing wording for sentinel errors.
const (
	msgMissingUsername = "Username not found in URL."
	msgURLRequired     = "Please enter a URL to suggest a title."
)

type suggestRequest struct {
	URL string `json:"url"`
}

// SuggestTitle handles POST /api/v1/suggest-title.
func (h *Handler) SuggestTitle(c *gin.Context) {
	snap, err := h.session(c).Snapshot()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !snap.SignedIn() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to suggest titles"})
		return
	}

	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	title, err := h.suggester.Suggest(c.Request.Context(), req.URL)
	switch {
	case err == nil:
		recordSuggestion("ok")
		c.JSON(http.StatusOK, gin.H{"title": title})
	case errors.Is(err, suggest.ErrURLRequired):
		recordSuggestion("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL Required", "description": msgURLRequired})
	case errors.Is(err, suggest.ErrInvalidURL):
		recordSuggestion("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
	case errors.Is(err, suggest.ErrBlockedAddress):
		recordSuggestion("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "url not allowed"})
	case errors.Is(err, suggest.ErrDisabled):
		recordSuggestion("disabled")
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		recordSuggestion("error")
		h.logger.Warn("suggest title", zap.String("url", req.URL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not suggest a title"})
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz handles GET /readyz.
func (h *Handler) Readyz(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	status, code := "ready", http.StatusOK
	if !h.health.Ready() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": h.health.Statuses()})
}
