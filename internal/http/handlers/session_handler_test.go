package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/tbourn/go-prompt-manager/internal/auth"
	"github.com/tbourn/go-prompt-manager/internal/config"
)

func newSessions(t *testing.T, withRedis bool) *auth.Sessions {
	t.Helper()
	cfg := config.SessionConfig{
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "promptd-test",
		TTL:        time.Hour,
		CookieName: "__session",
	}
	if !withRedis {
		return auth.NewSessions(cfg, nil)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewSessions(cfg, &auth.RedisDenylist{Client: client})
}

func sessionRouter(s *auth.Sessions, revoker SessionRevoker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.Middleware(s, "__session"))
	r.DELETE("/session", New(nil, revoker, "__session").DeleteSession)
	r.GET("/me", auth.Protect(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestDeleteSession_RevokesToken(t *testing.T) {
	s := newSessions(t, true)
	r := sessionRouter(s, s)
	tok, _, err := s.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("before sign-out: expected 204, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/session", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: tok})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("sign-out: expected 204, got %d (%s)", w.Code, w.Body.String())
	}
	if sc := w.Header().Get("Set-Cookie"); !strings.Contains(sc, "__session=;") {
		t.Fatalf("expected cookie to be cleared, got %q", sc)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("after sign-out: expected 401, got %d", w.Code)
	}
}

func TestDeleteSession_Errors(t *testing.T) {
	s := newSessions(t, true)
	r := sessionRouter(s, s)

	// No token.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/session", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}

	// Garbage token.
	req := httptest.NewRequest(http.MethodDelete, "/session", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}
}

func TestDeleteSession_NotConfigured(t *testing.T) {
	s := newSessions(t, false)
	for _, revoker := range []SessionRevoker{nil, s} {
		r := sessionRouter(s, revoker)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/session", nil))
		if w.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", w.Code)
		}
	}
}

type failingRevoker struct{}

func (failingRevoker) CanRevoke() bool                      { return true }
func (failingRevoker) Revoke(context.Context, string) error { return context.DeadlineExceeded }

func TestDeleteSession_BackendFailure(t *testing.T) {
	s := newSessions(t, false)
	tok, _, _ := s.Issue("u1")
	r := sessionRouter(s, failingRevoker{})

	req := httptest.NewRequest(http.MethodDelete, "/session", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
