// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file opens the configured backend (SQLite through the
// pure Go driver, or Postgres) and migrates the schema.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-prompt-manager/internal/config"
	"github.com/tbourn/go-prompt-manager/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSlowQuery = 200 * time.Millisecond
)

// sqlitePragmas are applied by the driver to every pooled connection, so
// per-connection settings such as foreign_keys hold for all of them.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

type pool struct {
	maxOpen     int
	maxIdle     int
	maxIdleTime time.Duration
	maxLifetime time.Duration
}

var pools = map[string]pool{
	DriverSQLite:   {maxOpen: 10, maxIdle: 10, maxIdleTime: 5 * time.Minute, maxLifetime: 30 * time.Minute},
	DriverPostgres: {maxOpen: 20, maxIdle: 10, maxIdleTime: 5 * time.Minute, maxLifetime: 30 * time.Minute},
}

// Open connects to the backend selected by cfg.Driver, tunes its pool and
// installs the OpenTelemetry plugin so every statement becomes a child span
// of the request that issued it.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dial gorm.Dialector
	switch driver {
	case DriverSQLite:
		// modernc reports a missing directory as "out of memory (14)"
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(sqliteDSN(cfg.Path))
	case DriverPostgres:
		dial = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: newGormLogger(cfg.SlowQuery)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	p := pools[driver]
	if cfg.MaxOpenConns > 0 {
		p.maxOpen = cfg.MaxOpenConns
		p.maxIdle = min(p.maxIdle, cfg.MaxOpenConns)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(p.maxIdleTime)
	sqlDB.SetConnMaxLifetime(p.maxLifetime)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (or creates) the SQLite database at path with default
// settings.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(config.DBConfig{Driver: DriverSQLite, Path: path})
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// gormWriter routes GORM's slow-query and error lines into zerolog.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(slow time.Duration) logger.Interface {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// AutoMigrate creates or updates the prompts and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Prompt{},
		&domain.Idempotency{},
	)
}
