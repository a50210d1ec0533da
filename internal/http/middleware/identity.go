package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-prompt-manager/internal/auth"
)

// callerID returns the identity attached by auth.Middleware, or "" for an
// anonymous request. Middleware keys buckets, logs and idempotency records on
// this value only; request headers never name the caller.
func callerID(c *gin.Context) string {
	if id, ok := auth.FromContext(c.Request.Context()); ok {
		return id.String()
	}
	return ""
}
