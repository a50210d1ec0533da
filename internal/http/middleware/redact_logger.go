// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger writes one access record per request and installs the
// request-scoped logger used by handlers and services. Bodies are never
// logged; prompt text therefore never reaches the logs. Query strings and
// header values are scrubbed before they are written.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// RedactOptions adds header names (case-insensitive) whose values are
// replaced wholesale with "[REDACTED]", on top of Authorization, Cookie and
// Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	// credential-looking query parameters lose their whole value
	secretParamRE = regexp.MustCompile(`(?i)\b((?:access_)?token|session|api_key|key)=[^&]*`)
	// compact JWS, the session token format
	tokenRE = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]*\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so it cannot eat the hex groups of a UUID
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

type redactor struct {
	masked map[string]struct{}
}

func newRedactor(extra []string) redactor {
	r := redactor{masked: map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

// scrub replaces tokens first and phone numbers last; the phone pattern is
// the loosest and would otherwise match inside the others.
func (redactor) scrub(s string) string {
	if s == "" {
		return s
	}
	s = tokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r redactor) query(raw string) string {
	return r.scrub(secretParamRE.ReplaceAllString(raw, "$1=[REDACTED]"))
}

func (r redactor) headers(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			d.Str(k, "[REDACTED]")
			continue
		}
		d.Str(k, r.scrub(strings.Join(vv, ", ")))
	}
	return d
}

// RedactingLogger must run after RequestID and auth.Middleware so the scoped
// logger carries request_id and the verified user_id, plus trace_id when the
// request is traced. Anonymous requests log an empty user_id. The access
// record is info for 2xx/3xx, warn for 4xx and error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := newRedactor(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetString(requestIDKey)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}
		lc := log.With().
			Str("request_id", rid).
			Str("user_id", callerID(c))
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			lc = lc.Str("trace_id", sc.TraceID().String())
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			ev = l.Error()
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		path := c.FullPath()
		if path == "" {
			path = red.scrub(c.Request.URL.Path)
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Str("query", red.query(c.Request.URL.RawQuery)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", red.headers(c.Request.Header)).
			Msg("http_request")
	}
}
