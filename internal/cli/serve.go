package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-prompt-manager/docs"
	"github.com/tbourn/go-prompt-manager/internal/auth"
	"github.com/tbourn/go-prompt-manager/internal/config"
	httpapi "github.com/tbourn/go-prompt-manager/internal/http"
	"github.com/tbourn/go-prompt-manager/internal/observability"
	"github.com/tbourn/go-prompt-manager/internal/repo"
	"github.com/tbourn/go-prompt-manager/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM, then drain in-flight requests.

The schema is migrated on startup unless --skip-migrate is given or
SKIP_MIGRATE is truthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, skipMigrate || sysutil.IsTruthy(os.Getenv("SKIP_MIGRATE")))
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate the schema on startup")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, skipMigrate bool) error {
	logs := sysutil.SetupLogging(sysutil.LogOptions{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	defer logs.Close()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if !skipMigrate {
		if err := repo.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	sessions, closeDeny, err := newSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeny()

	srv := newServer(cfg, db, sessions)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Bool("revocation", sessions.CanRevoke()).
			Str("version", Version).
			Msg("promptd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newSessions builds the session verifier and, when REDIS_ADDR is set, the
// revocation denylist. The returned func releases the Redis client.
func newSessions(ctx context.Context, cfg config.Config) (*auth.Sessions, func(), error) {
	if cfg.Redis.Addr == "" {
		return auth.NewSessions(cfg.Session, nil), func() {}, nil
	}
	deny, err := auth.NewRedisDenylist(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return auth.NewSessions(cfg.Session, deny), func() { _ = deny.Close() }, nil
}

// newServer mounts the API on a fresh Gin engine and wraps it in an
// http.Server carrying the configured timeouts.
func newServer(cfg config.Config, db *gorm.DB, sessions *auth.Sessions) *http.Server {
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = Version

	r := gin.New()
	httpapi.RegisterRoutes(r, db, sessions, cfg)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
