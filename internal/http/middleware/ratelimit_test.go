package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}

	// a bare gin key is not an identity
	c.Set("userID", "u123")
	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("unverified user id leaked into key: %q", got)
	}

	asUser("u123")(c)
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("authenticated key = %q", got)
	}
}

func TestKeyKind(t *testing.T) {
	cases := map[string]string{
		"user:u1":      keyKindUser,
		"ip:127.0.0.1": keyKindIP,
		"tenant:x":     keyKindOther,
		"nocolon":      keyKindOther,
	}
	for in, want := range cases {
		if got := keyKind(in); got != want {
			t.Errorf("keyKind(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestNewRateLimiter_BurstCoercionAndReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	now := time.Now()
	lim := rl.limiterFor("k1", now)
	if got := rl.limiterFor("k1", now); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
	if rl.Len() != 1 {
		t.Fatalf("Len = %d; want 1", rl.Len())
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	now := time.Now()

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-visitorTTL)}
	rl.visitors["fresh"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Second)}
	rl.lookups = sweepEveryN - 1
	rl.mu.Unlock()

	// the sweep runs before "old" would be refreshed
	_ = rl.limiterFor("old", now)

	rl.mu.Lock()
	oldV := rl.visitors["old"]
	_, freshKept := rl.visitors["fresh"]
	lookups := rl.lookups
	rl.mu.Unlock()

	if oldV == nil || !oldV.lastSeen.Equal(now) {
		t.Fatalf("expected 'old' to be evicted and recreated")
	}
	if !freshKept {
		t.Fatalf("fresh bucket should survive the sweep")
	}
	if lookups != 0 {
		t.Fatalf("lookup counter not reset: %d", lookups)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false when non-bool stored")
	}
}

func TestRateLimiter_Handler_DenyWithRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// one token every two seconds, frozen clock
	rl := NewRateLimiter(0.5, 1, KeyByUserOrIP())
	t0 := time.Now()
	rl.now = func() time.Time { return t0 }

	r := gin.New()
	r.Use(RequestID())
	r.Use(asUser("u1"))
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	before := testutil.ToFloat64(httpRateLimited.WithLabelValues(keyKindUser))

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w1.Code)
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d should be rate-limited, got %d", i+2, w.Code)
		}
		// rejected requests do not push the next token further out
		if got := w.Header().Get("Retry-After"); got != "2" {
			t.Fatalf("Retry-After = %q; want 2", got)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON body: %v", err)
		}
		if body["code"] != "too_many_requests" || body["message"] != "rate limit exceeded" {
			t.Fatalf("unexpected JSON body: %v", body)
		}
		if body["request_id"] != w.Header().Get(requestIDHeader) {
			t.Fatalf("request_id mismatch: %v vs %q", body["request_id"], w.Header().Get(requestIDHeader))
		}
	}

	if got := testutil.ToFloat64(httpRateLimited.WithLabelValues(keyKindUser)) - before; got != 2 {
		t.Fatalf("http_rate_limited_total{kind=user} delta = %v; want 2", got)
	}

	// two seconds later the bucket has refilled
	rl.now = func() time.Time { return t0.Add(2 * time.Second) }
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("refilled request should be allowed, got %d", w.Code)
	}
}

func TestRateLimiter_Handler_BucketsArePerCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	t0 := time.Now()
	rl.now = func() time.Time { return t0 }

	serve := func(user string) int {
		r := gin.New()
		r.Use(asUser(user))
		r.Use(rl.Handler())
		r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		return w.Code
	}

	if serve("u1") != http.StatusNoContent || serve("u2") != http.StatusNoContent {
		t.Fatalf("each caller should get its own first token")
	}
	if serve("u1") != http.StatusTooManyRequests {
		t.Fatalf("u1 should be limited on its second request")
	}
}

func TestRateLimiter_Handler_Bypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	t0 := time.Now()
	rl.now = func() time.Time { return t0 }
	_ = rl.limiterFor("ip:192.0.2.1", t0).Allow()

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("bypass request should be allowed, got %d", w.Code)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{10 * time.Second, 10},
	}
	for _, tc := range cases {
		if got := retryAfterSeconds(tc.in); got != tc.want {
			t.Errorf("retryAfterSeconds(%v) = %d; want %d", tc.in, got, tc.want)
		}
	}
}
