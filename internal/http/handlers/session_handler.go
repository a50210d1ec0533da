package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-prompt-manager/internal/auth"
)

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Sign out
// @Description Revokes the session token presented with the request and clears the session cookie.
// @Tags        Session
// @Produce     json
// @Security    BearerAuth
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Failure     501  {object} handlers.ErrorResponse "Revocation not configured"
// @Router      /session [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if h.sessions == nil || !h.sessions.CanRevoke() {
		fail(c, http.StatusNotImplemented, ErrCodeNotImplemented, "session revocation is not configured")
		return
	}
	tok, found := auth.TokenFromRequest(c, h.cookieName)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), tok); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid session")
			return
		}
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "failed to revoke session", err)
		return
	}
	if h.cookieName != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	}
	noContent(c)
}
