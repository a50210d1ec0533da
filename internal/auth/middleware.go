package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ContextKeyUserID is the Gin context key holding the resolved identity as a
// plain string. Logging and idempotency middleware read it.
const ContextKeyUserID = "userID"

// TokenFromRequest extracts a session token from the Authorization header
// ("Bearer <token>") or, failing that, from the named cookie.
func TokenFromRequest(c *gin.Context, cookieName string) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		const prefix = "bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			if tok := strings.TrimSpace(h[len(prefix):]); tok != "" {
				return tok, true
			}
		}
		return "", false
	}
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Middleware verifies the session token carried by the request, if any, and
// attaches the resulting identity to the request context. It never rejects a
// request; use Protect for that.
func Middleware(s *Sessions, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := TokenFromRequest(c, cookieName)
		if ok {
			id, err := s.Verify(c.Request.Context(), tok)
			if err == nil {
				c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
				c.Set(ContextKeyUserID, id.String())
			} else {
				log.Debug().Err(err).Msg("session rejected")
			}
		}
		c.Next()
	}
}

// Protect answers 401 for requests without a resolved identity.
func Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := FromContext(c.Request.Context()); ok {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "unauthorized",
			"message":    "authentication required",
		})
	}
}
