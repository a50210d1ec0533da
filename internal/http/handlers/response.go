// Package handlers provides the HTTP handlers for the prompt API.
//
// Every error leaves through fail, so clients always see the same envelope:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "prompt not found or not owned by caller"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-prompt-manager/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching client reports to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"prompt not found or not owned by caller"`
}

func requestID(c *gin.Context) string {
	if rid := c.GetString("requestID"); rid != "" {
		return rid
	}
	return c.Writer.Header().Get("X-Request-ID")
}

// fail aborts with an ErrorResponse. 5xx are logged at error level, 401 at
// debug; other client errors are left to the access log.
func fail(c *gin.Context, status int, code, msg string) {
	failCause(c, status, code, msg, nil)
}

// failCause is fail with an underlying error that is logged but never sent
// to the client.
func failCause(c *gin.Context, status int, code, msg string, cause error) {
	var ev *zerolog.Event
	lg := middleware.LoggerFrom(c)
	switch {
	case status >= http.StatusInternalServerError:
		ev = lg.Error()
	case status == http.StatusUnauthorized:
		ev = lg.Debug()
	}
	if ev != nil {
		ev.Int("status", status).Str("code", code).Err(cause).Msg(msg)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is used by the router for NoRoute and NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
