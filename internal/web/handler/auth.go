package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/session"
)

// BeginGoogle handles GET /auth/google: redirects to Google's consent screen.
func (h *Handler) BeginGoogle(c *gin.Context) {
	rec := h.session(c)
	if err := rec.BeginSignIn(); err != nil {
		h.logger.Info("sign-in not started", zap.String("client_id", clientIDFrom(c)), zap.Error(err))
		c.Redirect(http.StatusFound, "/")
		return
	}
	url, err := h.consent.AuthCodeURL(clientIDFrom(c))
	if err != nil {
		h.logger.Warn("build consent url", zap.Error(err))
		_ = rec.AbortSignIn(err)
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback handles GET /auth/google/callback.
func (h *Handler) GoogleCallback(c *gin.Context) {
	rec := h.session(c)
	cred := identity.Credential{
		Code:  c.Query("code"),
		State: c.Query("state"),
		Error: c.Query("error"),
	}
	if err := rec.SignInWithGoogle(c.Request.Context(), cred); err != nil {
		h.logger.Info("google sign-in failed",
			zap.String("client_id", clientIDFrom(c)),
			zap.String("code", string(identity.CodeOf(err))),
			zap.Error(err),
		)
	}
	h.syncSessionCookie(c, rec)
	c.Redirect(http.StatusFound, "/")
}

// SignOut handles POST /auth/signout.
func (h *Handler) SignOut(c *gin.Context) {
	rec := h.session(c)
	if err := rec.SignOutUser(c.Request.Context()); err != nil {
		h.logger.Info("sign-out failed", zap.String("client_id", clientIDFrom(c)), zap.Error(err))
	}
	h.syncSessionCookie(c, rec)
	c.Redirect(http.StatusFound, "/")
}

// DeleteAccount handles POST /account/delete.
func (h *Handler) DeleteAccount(c *gin.Context) {
	rec := h.session(c)
	if _, err := h.deleteAccount(c, rec); err != nil {
		h.logger.Info("account deletion rejected", zap.String("client_id", clientIDFrom(c)), zap.Error(err))
	}
	c.Redirect(http.StatusFound, "/")
}

// DeleteMe handles DELETE /api/v1/me and returns the per-step report.
func (h *Handler) DeleteMe(c *gin.Context) {
	rec := h.session(c)
	report, err := h.deleteAccount(c, rec)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if report.Status == session.DeletionAborted {
		status = http.StatusInternalServerError
	}
	c.JSON(status, report)
}

func (h *Handler) deleteAccount(c *gin.Context, rec Reconciler) (*session.DeletionReport, error) {
	report, err := rec.DeleteUserAccount(c.Request.Context())
	h.syncSessionCookie(c, rec)
	if err != nil {
		return nil, err
	}
	h.logger.Info("account deletion finished",
		zap.String("client_id", clientIDFrom(c)),
		zap.String("status", string(report.Status)),
	)
	return report, nil
}

// statusFor maps reconciler precondition errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
