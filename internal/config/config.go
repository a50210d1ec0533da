// Package config loads promptd settings from the environment.
//
// Every setting has a default, so an empty environment plus SESSION_SECRET
// is a valid configuration. Values that are present but malformed are
// errors rather than silent fallbacks, and Load reports all problems at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma separated
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0,1]
}

// DBConfig selects and tunes the relational backend.
type DBConfig struct {
	Driver       string        // DB_DRIVER: sqlite|postgres
	Path         string        // DB_PATH, SQLite only
	DSN          string        // DB_DSN, Postgres only
	MaxOpenConns int           // DB_MAX_OPEN_CONNS; 0 keeps the driver default
	SlowQuery    time.Duration // DB_SLOW_QUERY; statements slower than this are logged
}

// SessionConfig controls how session tokens are issued and verified.
type SessionConfig struct {
	Secret     string        // HMAC key, at least minSecretLen bytes
	Issuer     string        // iss claim
	TTL        time.Duration // token lifetime
	CookieName string        // read when no bearer token is sent
}

// RedisConfig locates the session revocation store. An empty Addr disables
// revocation.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogFileConfig adds a rotating log file next to stdout when Path is set.
type LogFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SearchConfig tunes prompt search ranking.
type SearchConfig struct {
	MinScore  float64  // SEARCH_MIN_SCORE in [0,1]; hits scoring below it are dropped
	Stopwords []string // SEARCH_STOPWORDS, comma separated; ignored when tokenizing
}

// Config is the full process configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // trace|debug|info|warn|error|fatal|panic
	LogPretty      bool
	LogFile        LogFileConfig
	SwaggerEnabled bool
	APIBasePath    string

	DB      DBConfig
	Session SessionConfig
	Redis   RedisConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	Search SearchConfig

	OTEL OTELConfig
}

const minSecretLen = 32

var (
	logLevels   = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	ginModes    = []string{"debug", "release", "test"}
	dbDrivers   = []string{"sqlite", "postgres"}
	driverAlias = map[string]string{"pg": "postgres", "postgresql": "postgres", "sqlite3": "sqlite"}
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error and an empty path means ".env".
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MustLoad is Load for callers that cannot continue without a config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, normalizes aliases and validates the result.
// The returned error joins every parse and validation failure.
func Load() (Config, error) {
	var env envReader
	cfg := Config{
		Port:              env.str("PORT", "8080"),
		ReadTimeout:       env.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: env.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      env.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       env.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    env.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           env.str("GIN_MODE", "release"),

		LogLevel:  env.str("LOG_LEVEL", "info"),
		LogPretty: env.boolean("LOG_PRETTY", false),
		LogFile: LogFileConfig{
			Path:       env.str("LOG_FILE", ""),
			MaxSizeMB:  env.integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: env.integer("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: env.integer("LOG_MAX_AGE_DAYS", 28),
			Compress:   env.boolean("LOG_COMPRESS", true),
		},
		SwaggerEnabled: env.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    env.str("API_BASE_PATH", "/api/v1"),

		DB: DBConfig{
			Driver:       env.str("DB_DRIVER", "sqlite"),
			Path:         env.str("DB_PATH", "prompts.db"),
			DSN:          env.str("DB_DSN", ""),
			MaxOpenConns: env.integer("DB_MAX_OPEN_CONNS", 0),
			SlowQuery:    env.duration("DB_SLOW_QUERY", 200*time.Millisecond),
		},
		Session: SessionConfig{
			Secret:     env.str("SESSION_SECRET", ""),
			Issuer:     env.str("SESSION_ISSUER", "promptd"),
			TTL:        env.duration("SESSION_TTL", 12*time.Hour),
			CookieName: env.str("SESSION_COOKIE", "__session"),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", ""),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.integer("REDIS_DB", 0),
		},

		RateRPS:   env.float("RATE_RPS", 5),
		RateBurst: env.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(env.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: env.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: env.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: env.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		Search: SearchConfig{
			MinScore:  env.float("SEARCH_MIN_SCORE", 0),
			Stopwords: splitCSV(env.str("SEARCH_STOPWORDS", "")),
		},

		OTEL: OTELConfig{
			Enabled:     env.boolean("OTEL_ENABLED", false),
			Endpoint:    env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env.str("OTEL_SERVICE_NAME", "promptd"),
			SampleRatio: env.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	cfg.normalize()
	return cfg, errors.Join(append(env.errs, cfg.Validate())...)
}

func (c *Config) normalize() {
	c.GinMode = strings.ToLower(c.GinMode)
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.DB.Driver = strings.ToLower(c.DB.Driver)
	if canonical, ok := driverAlias[c.DB.Driver]; ok {
		c.DB.Driver = canonical
	}
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
}

// Validate reports every setting that is out of range, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains(logLevels, c.LogLevel), "LOG_LEVEL must be one of %s", strings.Join(logLevels, ", "))
	check(slices.Contains(ginModes, c.GinMode), "GIN_MODE must be one of %s", strings.Join(ginModes, ", "))
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	check(slices.Contains(dbDrivers, c.DB.Driver), "DB_DRIVER must be one of %s", strings.Join(dbDrivers, ", "))
	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN is required when DB_DRIVER=postgres")
	}
	check(c.DB.MaxOpenConns >= 0, "DB_MAX_OPEN_CONNS must be >= 0")
	check(c.DB.SlowQuery >= 0, "DB_SLOW_QUERY must be >= 0")

	check(len(c.Session.Secret) >= minSecretLen, "SESSION_SECRET must be at least %d bytes", minSecretLen)
	check(c.Session.TTL > 0, "SESSION_TTL must be > 0")
	check(strings.TrimSpace(c.Session.CookieName) != "", "SESSION_COOKIE must not be empty")
	check(c.Redis.DB >= 0, "REDIS_DB must be >= 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.Search.MinScore >= 0 && c.Search.MinScore <= 1, "SEARCH_MIN_SCORE must be in [0,1]")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// envReader reads typed variables, treating unset and empty alike, and
// collects a parse error for each malformed value.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(key, raw string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	raw, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, errors.New("not an integer"))
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	raw, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(key, raw, errors.New("not a number"))
		return def
	}
	return f
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, errors.New("not a duration"))
		return def
	}
	return d
}

func (r *envReader) boolean(key string, def bool) bool {
	raw, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	r.fail(key, raw, errors.New("not a boolean"))
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash,
// or "/" when p is blank.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
