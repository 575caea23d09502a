package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cookie names.
const (
	ClientCookie  = "linkhub_client"
	SessionCookie = "linkhub_session"
	ThemeCookie   = "linkhub_theme"
)

const (
	clientIDKey    = "linkhub.client_id"
	clientIDMaxAge = 365 * 24 * time.Hour
	themeMaxAge    = 365 * 24 * time.Hour
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ClientID returns middleware that identifies the browser with a random
// client cookie, issuing one on first contact.
func (h *Handler) ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(ClientCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			h.setCookie(c, ClientCookie, id, clientIDMaxAge)
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

func clientIDFrom(c *gin.Context) string {
	return c.GetString(clientIDKey)
}

// SecurityHeaders sets conservative browser security headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func (h *Handler) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// syncSessionCookie mirrors the provider's session handle into the cookie.
func (h *Handler) syncSessionCookie(c *gin.Context, rec Reconciler) {
	if token := rec.SessionToken(); token != "" {
		h.setCookie(c, SessionCookie, token, h.cookies.SessionTTL)
		return
	}
	if _, err := c.Cookie(SessionCookie); err == nil {
		h.clearCookie(c, SessionCookie)
	}
}

func theme(c *gin.Context) string {
	if v, _ := c.Cookie(ThemeCookie); v == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}
