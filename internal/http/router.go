// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, session resolution, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Resolve the caller once, before anything that keys on the user
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-prompt-manager/docs"
	"github.com/tbourn/go-prompt-manager/internal/auth"
	"github.com/tbourn/go-prompt-manager/internal/config"
	"github.com/tbourn/go-prompt-manager/internal/domain"
	"github.com/tbourn/go-prompt-manager/internal/http/handlers"
	"github.com/tbourn/go-prompt-manager/internal/http/middleware"
	"github.com/tbourn/go-prompt-manager/internal/repo"
	"github.com/tbourn/go-prompt-manager/internal/search"
	"github.com/tbourn/go-prompt-manager/internal/services"
)

// promptRepoShim adapts the repository free functions to the
// services.PromptRepo, services.IdempotencyRepo and services.StatsRepo
// interfaces expected by PromptService.
type promptRepoShim struct{}

// ListPrompts proxies repo.ListPrompts.
func (promptRepoShim) ListPrompts(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Prompt, error) {
	return repo.ListPrompts(ctx, db, ownerID)
}

// GetPrompt proxies repo.GetPrompt.
func (promptRepoShim) GetPrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error) {
	return repo.GetPrompt(ctx, db, ownerID, id)
}

// CreatePrompt proxies repo.CreatePrompt.
func (promptRepoShim) CreatePrompt(ctx context.Context, db *gorm.DB, ownerID string, in domain.PromptInput) (*domain.Prompt, error) {
	return repo.CreatePrompt(ctx, db, ownerID, in)
}

// UpdatePrompt proxies repo.UpdatePrompt.
func (promptRepoShim) UpdatePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint, in domain.PromptInput) (*domain.Prompt, error) {
	return repo.UpdatePrompt(ctx, db, ownerID, id, in)
}

// DeletePrompt proxies repo.DeletePrompt.
func (promptRepoShim) DeletePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error) {
	return repo.DeletePrompt(ctx, db, ownerID, id)
}

// GetIdempotency proxies repo.GetIdempotency.
func (promptRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, userID, key, now)
}

// CreateIdempotency proxies repo.CreateIdempotency.
func (promptRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, userID, key, promptID, status, ttl)
}

// RepointIdempotency proxies repo.RepointIdempotency.
func (promptRepoShim) RepointIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, ttl time.Duration) error {
	return repo.RepointIdempotency(ctx, db, userID, key, promptID, ttl)
}

// PromptsStats proxies repo.PromptsStats.
func (promptRepoShim) PromptsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, uint, *time.Time, error) {
	return repo.PromptsStats(ctx, db, ownerID)
}

// replayLookup reports a replay only while the prompt the key produced still
// exists, so a key whose target was deleted is rate limited like a new create.
func replayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, key, now)
		if err == nil {
			_, err = repo.GetPrompt(ctx, db, userID, rec.PromptID)
		}
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		}
		return false, err
	}
}

var (
	// corsHeaders are the request headers browsers may send cross-origin.
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	// corsExposed are the response headers scripts may read.
	corsExposed = []string{"X-Request-ID", "Content-Length", "ETag", "Idempotent-Replayed"}
)

// corsHandlers returns the CORS chain. With no configured origins any origin
// is allowed without credentials, and Access-Control-Allow-Origin: * is sent
// even when the request has no Origin. With an allow-list the matching origin
// is echoed and credentials (the session cookie) are allowed.
func corsHandlers(origins []string) []gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  corsHeaders,
		ExposeHeaders: corsExposed,
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		conf.AllowAllOrigins = true
		anyOrigin := func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{anyOrigin, cors.New(conf)}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	echoOrigin := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Next()
	}
	conf.AllowOrigins = origins
	conf.AllowCredentials = true
	return []gin.HandlerFunc{echoOrigin, cors.New(conf)}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), session resolution,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the protected API under APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Session: resolve the caller (never rejects)
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter and gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, sessions *auth.Sessions, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Who is calling
	r.Use(auth.Middleware(sessions, cfg.Session.CookieName))

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		replayLookup(db),
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS and security headers
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)

	// Responses are per owner: private caches may keep them but must revalidate.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: "private, no-cache",
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Public endpoints
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/identity
	shim := promptRepoShim{}
	promptSvc := services.NewPromptService(db, shim, auth.ContextResolver)
	promptSvc.Idem = shim
	promptSvc.IdemTTL = cfg.IdempotencyTTL
	promptSvc.StatsRepo = shim
	promptSvc.SearchOptions = []search.Option{
		search.WithMinScore(cfg.Search.MinScore),
		search.WithStopwords(cfg.Search.Stopwords),
	}

	h := handlers.New(promptSvc, sessions, cfg.Session.CookieName)

	// Protected API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(auth.Protect())
	{
		api.GET("/prompts", h.ListPrompts)
		api.GET("/prompts/search", h.SearchPrompts)
		api.GET("/prompts/:id", h.GetPrompt)
		api.POST("/prompts", h.CreatePrompt)
		api.PUT("/prompts/:id", h.UpdatePrompt)
		api.DELETE("/prompts/:id", h.DeletePrompt)

		api.DELETE("/session", h.DeleteSession)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
