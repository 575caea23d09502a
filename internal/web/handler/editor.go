package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/account"
	"github.com/jmerrifield20/LinkHub/internal/suggest"
)

type profileForm struct {
	Username  string `form:"username"`
	Bio       string `form:"bio"`
	AvatarURL string `form:"avatarUrl"`
}

type linkForm struct {
	Title string `form:"title"`
	URL   string `form:"url"`
}

// UpdateProfile handles POST /profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var f profileForm
	if err := c.ShouldBind(&f); err != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	h.edit(c, "update profile", h.session(c).UpdateProfile(account.Profile{
		Username:  f.Username,
		Bio:       f.Bio,
		AvatarURL: strings.TrimSpace(f.AvatarURL),
	}))
}

// AddLink handles POST /links.
func (h *Handler) AddLink(c *gin.Context) {
	var f linkForm
	_ = c.ShouldBind(&f)
	_, err := h.session(c).AddLink(f.Title, f.URL)
	h.edit(c, "add link", err)
}

// UpdateLink handles POST /links/:id.
func (h *Handler) UpdateLink(c *gin.Context) {
	var f linkForm
	_ = c.ShouldBind(&f)
	h.edit(c, "update link", h.session(c).UpdateLink(c.Param("id"), f.Title, f.URL))
}

// RemoveLink handles POST /links/:id/delete.
func (h *Handler) RemoveLink(c *gin.Context) {
	h.edit(c, "remove link", h.session(c).RemoveLink(c.Param("id")))
}

// SuggestLinkTitle handles POST /suggest-title, the add-link form's suggest
// button. The form is redirected back with the suggested title filled in.
func (h *Handler) SuggestLinkTitle(c *gin.Context) {
	snap, err := h.session(c).Snapshot()
	if err != nil || !snap.SignedIn() {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	var f linkForm
	_ = c.ShouldBind(&f)

	draft := url.Values{"title": {f.Title}, "url": {f.URL}}
	title, err := h.suggester.Suggest(c.Request.Context(), f.URL)
	if err != nil {
		recordSuggestion(suggestOutcome(err))
		h.logger.Debug("suggest title", zap.String("url", f.URL), zap.Error(err))
		draft.Set("suggest_error", suggestMessage(err))
	} else {
		recordSuggestion("ok")
		draft.Set("title", title)
	}
	c.Redirect(http.StatusSeeOther, "/?"+draft.Encode())
}

// Save handles POST /save.
func (h *Handler) Save(c *gin.Context) {
	h.edit(c, "save", h.session(c).Save(c.Request.Context()))
}

// ToggleTheme handles POST /theme.
func (h *Handler) ToggleTheme(c *gin.Context) {
	next := ThemeDark
	if theme(c) == ThemeDark {
		next = ThemeLight
	}
	h.setCookie(c, ThemeCookie, next, themeMaxAge)
	c.Redirect(http.StatusSeeOther, "/")
}

// edit logs a rejected editor action and redirects back to the editor. The
// reconciler has already queued the user-facing notice.
func (h *Handler) edit(c *gin.Context, action string, err error) {
	if err != nil {
		h.logger.Debug("editor action rejected",
			zap.String("action", action),
			zap.String("client_id", clientIDFrom(c)),
			zap.Error(err),
		)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func suggestOutcome(err error) string {
	switch {
	case errors.Is(err, suggest.ErrDisabled):
		return "disabled"
	case errors.Is(err, suggest.ErrURLRequired),
		errors.Is(err, suggest.ErrInvalidURL),
		errors.Is(err, suggest.ErrBlockedAddress):
		return "rejected"
	default:
		return "error"
	}
}

func suggestMessage(err error) string {
	switch {
	case errors.Is(err, suggest.ErrURLRequired):
		return msgURLRequired
	case errors.Is(err, suggest.ErrInvalidURL):
		return "Please enter a full http:// or https:// URL."
	case errors.Is(err, suggest.ErrBlockedAddress):
		return "That address cannot be fetched."
	case errors.Is(err, suggest.ErrDisabled):
		return "Title suggestion is turned off on this server."
	case errors.Is(err, suggest.ErrNoTitle):
		return "No title found on that page."
	default:
		return "Could not suggest a title. Please try again."
	}
}
