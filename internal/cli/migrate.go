package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-prompt-manager/internal/config"
	"github.com/tbourn/go-prompt-manager/internal/repo"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create or update the database schema, then delete idempotency
records whose TTL has elapsed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			purged, err := migrate(cmd.Context(), cfg.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s), %d expired idempotency keys removed\n", cfg.DB.Driver, purged)
			return nil
		},
	}
}

func migrate(ctx context.Context, cfg config.DBConfig) (int64, error) {
	db, err := repo.Open(cfg)
	if err != nil {
		return 0, fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency: %w", err)
	}
	return n, nil
}
