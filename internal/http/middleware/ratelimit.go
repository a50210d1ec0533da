// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the in-memory token-bucket limiter. Authenticated callers
// get one bucket per identity; anonymous traffic (which never reaches a
// prompt operation) is bucketed by client IP. Buckets live in process memory,
// so limits are per replica.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorTTL   = 10 * time.Minute
	sweepEveryN  = 5000
	keyKindUser  = "user"
	keyKindIP    = "ip"
	keyKindOther = "other"
)

// keyFunc maps a request to its bucket key, e.g. "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated identity, falling back to
// the client IP for anonymous requests.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := callerID(c); uid != "" {
			return keyKindUser + ":" + uid
		}
		return keyKindIP + ":" + c.ClientIP()
	}
}

// keyKind returns the namespace prefix of a bucket key, used as a metric label.
func keyKind(key string) string {
	kind, _, ok := strings.Cut(key, ":")
	if !ok {
		return keyKindOther
	}
	switch kind {
	case keyKindUser, keyKindIP:
		return kind
	}
	return keyKindOther
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
	ttl      time.Duration
	now      func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst. A burst <= 0 is treated as 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      visitorTTL,
		now:      time.Now,
	}
}

// limiterFor returns the bucket for key, creating it on first use. Every
// sweepEveryN lookups idle buckets are dropped; the sweep runs before the
// lookup so a stale bucket is not refreshed by the request that finds it.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEveryN {
		rl.sweepLocked(now)
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.ttl {
			delete(rl.visitors, k)
		}
	}
}

// Len reports how many buckets are currently held.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay, which the limiter lets through without spending a token.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. A rejected request gets
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds until the next token, at least 1>
//	{"request_id": "...", "code": "too_many_requests", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		now := rl.now()
		wait, ok := reserve(rl.limiterFor(key, now), now)
		if ok {
			c.Next()
			return
		}

		httpRateLimited.WithLabelValues(keyKind(key)).Inc()
		LoggerFrom(c).Debug().Str("bucket", keyKind(key)).Dur("retry_after", wait).Msg("rate limited")

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

// reserve takes a token if one is available now. Otherwise the reservation
// is returned to the bucket and the wait until the next token is reported.
func reserve(lim *rate.Limiter, now time.Time) (time.Duration, bool) {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 0, false
	}
	d := r.DelayFrom(now)
	if d == 0 {
		return 0, true
	}
	r.CancelAt(now)
	return d, false
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
