// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SecurityHeaders attaches hardening headers for a JSON API behind a reverse
// proxy. Every prompt response is specific to the authenticated caller, so
// the middleware also controls caching: shared caches must never serve one
// owner's prompts to another.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// NoStore sends Cache-Control: no-store with the legacy Pragma/Expires pair.
	// It takes precedence over CacheControl.
	NoStore bool
	// CacheControl, when set, is sent verbatim unless the handler sets its own.
	CacheControl string
	// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

// SecurityHeaders returns the hardening middleware.
//
// Always set: X-Content-Type-Options: nosniff, X-Frame-Options: DENY,
// Referrer-Policy: no-referrer and Vary: Authorization, Cookie. When an
// X-Request-ID header is already on the response it is added to
// Access-Control-Expose-Headers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		appendToken(h, "Vary", "Authorization")
		appendToken(h, "Vary", "Cookie")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch {
		case opt.NoStore:
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		case opt.CacheControl != "" && h.Get("Cache-Control") == "":
			h.Set("Cache-Control", opt.CacheControl)
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			appendToken(h, "Access-Control-Expose-Headers", requestIDHeader)
		}

		c.Next()
	}
}

// appendToken adds tok to a comma-separated header unless it is already listed.
func appendToken(h http.Header, key, tok string) {
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, tok)
		return
	}
	for _, part := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(part), tok) {
			return
		}
	}
	h.Set(key, cur+", "+tok)
}

// isHTTPS reports whether the request arrived over TLS, directly or via a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
