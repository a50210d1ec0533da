// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds request correlation and panic recovery. RequestID runs
// right after the tracing middleware; Recovery runs after RedactingLogger so
// a panic is logged with the caller's scoped fields.
package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// requestIDAttr tags the server span so traces and logs can be joined.
	requestIDAttr = attribute.Key("http.request_id")
)

// Inbound IDs are echoed into logs and headers, so only a conservative
// alphabet is accepted.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID reuses a well-formed inbound X-Request-ID or mints a UUIDv4. The
// value is echoed on the response, kept under the "requestID" context key
// and set on the current span.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(requestIDAttr.String(rid))
		c.Next()
	}
}

// Recovery turns a panic into a 500. The stack goes to the scoped logger and
// the panic is recorded on the span. When the handler has already started
// the response only the status is set; otherwise the client gets
//
//	{"request_id": "...", "code": "internal_error", "message": "internal server error"}
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			httpPanics.Inc()

			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(fmt.Errorf("panic: %v", rec))
			span.SetStatus(codes.Error, "panic recovered")

			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger RedactingLogger attached to the request,
// else the one on the request context, else a copy of the global logger.
// The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	if c.Request != nil {
		if lg := zerolog.Ctx(c.Request.Context()); lg.GetLevel() != zerolog.Disabled {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}
