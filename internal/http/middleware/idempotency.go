// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// IdempotencyValidator checks the Idempotency-Key header on prompt creation
// and asks a lookup whether the caller already completed a create under the
// same key. It only annotates the request: the handler decides how to serve a
// replay, and the rate limiter lets replays through for free.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key for a retryable create.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdem       = "idem"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := c.GetString(ctxKeyIdem)
	return k, k != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern defaults to ^[A-Za-z0-9._~:-]+$.
	Pattern *regexp.Regexp
	// Methods the header is honored on; empty means POST only. On other
	// methods the header is ignored.
	Methods []string
}

// IdempotencyLookup reports whether (userID, key) will be served as a replay.
// A non-nil error is logged and the request proceeds as a first attempt.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (bool, error)

// IdempotencyValidator validates the header and records the outcome on the
// request. A malformed key is answered with 400 bad_request. The lookup only
// runs for authenticated callers, so keys never match across owners.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodPost}
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || !hasMethod(methods, c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid Idempotency-Key")
			return
		}

		c.Set(ctxKeyIdem, key)
		if uid := callerID(c); uid != "" && lookup != nil {
			found, err := lookup(c.Request.Context(), uid, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if err == nil && found {
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

func hasMethod(methods []string, m string) bool {
	for _, x := range methods {
		if strings.EqualFold(x, m) {
			return true
		}
	}
	return false
}
