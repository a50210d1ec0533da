package middleware

import "github.com/gin-gonic/gin"

// abortJSON ends the request with the API error envelope
// {request_id, code, message} shared with the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.GetString(requestIDKey),
		"code":       code,
		"message":    msg,
	})
}
