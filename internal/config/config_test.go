package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv unsets every variable Load reads so a developer's shell does not
// leak into the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	prefixes := []string{"READ_", "WRITE_", "IDLE_", "MAX_HEADER", "GIN_", "LOG_", "SWAGGER_", "API_",
		"DB_", "SESSION_", "REDIS_", "RATE_", "CORS_", "ENABLE_HSTS", "HSTS_", "IDEMPOTENCY_", "SEARCH_", "OTEL_"}
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if k == "PORT" || slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(k, p) }) {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	t.Setenv("SESSION_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)
	assert.Equal(t, DBConfig{Driver: "sqlite", Path: "prompts.db", SlowQuery: 200 * time.Millisecond}, cfg.DB)
	assert.Equal(t, "__session", cfg.Session.CookieName)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Empty(t, cfg.Redis.Addr, "revocation is off by default")
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, SearchConfig{}, cfg.Search)
	assert.False(t, cfg.OTEL.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.SampleRatio)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	for k, v := range map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "DEBUG",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"LOG_FILE":                    "logs/promptd.log",
		"LOG_MAX_BACKUPS":             "7",
		"SWAGGER_ENABLED":             " on ",
		"API_BASE_PATH":               "api/v1/",
		"DB_DRIVER":                   "PG",
		"DB_DSN":                      "host=db user=app dbname=prompts",
		"DB_MAX_OPEN_CONNS":           "40",
		"DB_SLOW_QUERY":               "1s",
		"SESSION_ISSUER":              "tests",
		"SESSION_TTL":                 "90m",
		"SESSION_COOKIE":              "sid",
		"REDIS_ADDR":                  "redis:6379",
		"REDIS_DB":                    "2",
		"RATE_RPS":                    "0.5",
		"RATE_BURST":                  "3",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"SEARCH_MIN_SCORE":            "0.2",
		"SEARCH_STOPWORDS":            "the, a ,of",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 8192, cfg.MaxHeaderBytes)
	assert.Equal(t, "debug", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, LogFileConfig{Path: "logs/promptd.log", MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 28, Compress: true}, cfg.LogFile)
	assert.True(t, cfg.SwaggerEnabled)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)
	assert.Equal(t, DBConfig{
		Driver: "postgres", Path: "prompts.db", DSN: "host=db user=app dbname=prompts",
		MaxOpenConns: 40, SlowQuery: time.Second,
	}, cfg.DB)
	assert.Equal(t, SessionConfig{Secret: testSecret, Issuer: "tests", TTL: 90 * time.Minute, CookieName: "sid"}, cfg.Session)
	assert.Equal(t, RedisConfig{Addr: "redis:6379", DB: 2}, cfg.Redis)
	assert.Equal(t, 0.5, cfg.RateRPS)
	assert.Equal(t, 3, cfg.RateBurst)
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, cfg.Security)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, SearchConfig{MinScore: 0.2, Stopwords: []string{"the", "a", "of"}}, cfg.Search)
	assert.Equal(t, OTELConfig{Enabled: true, Endpoint: "otel:4317", ServiceName: "svc", SampleRatio: 0.75}, cfg.OTEL)
}

func TestLoad_MalformedValuesAreErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		`RATE_RPS="x": not a number`,
		`RATE_BURST="nope": not an integer`,
		`SESSION_TTL="soon": not a duration`,
		`LOG_PRETTY="maybe": not a boolean`,
	} {
		assert.Contains(t, err.Error(), want)
	}
	// defaults are still filled in
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL must be one of trace, debug"},
		{"gin mode", map[string]string{"GIN_MODE": "weird"}, "GIN_MODE must be one of debug, release, test"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "server timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank db path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN is required"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER must be one of sqlite, postgres"},
		{"pool size", map[string]string{"DB_MAX_OPEN_CONNS": "-1"}, "DB_MAX_OPEN_CONNS"},
		{"short secret", map[string]string{"SESSION_SECRET": "too-short"}, "SESSION_SECRET must be at least 32 bytes"},
		{"session ttl", map[string]string{"SESSION_TTL": "-1m"}, "SESSION_TTL"},
		{"redis db", map[string]string{"REDIS_DB": "-1"}, "REDIS_DB"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"search min score", map[string]string{"SEARCH_MIN_SCORE": "1.5"}, "SEARCH_MIN_SCORE"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Config{LogLevel: "info", GinMode: "release", Port: "1"}.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"server timeouts", "MAX_HEADER_BYTES", "DB_DRIVER", "SESSION_SECRET", "SESSION_TTL", "RATE_BURST", "IDEMPOTENCY_TTL"} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "LOG_LEVEL")
	assert.NotContains(t, msg, "PORT")
	assert.NotContains(t, msg, "GIN_MODE")
}

func TestMustLoad(t *testing.T) {
	clearEnv(t)
	assert.NotPanics(t, func() { _ = MustLoad() })

	t.Setenv("LOG_LEVEL", "verbose")
	assert.Panics(t, func() { _ = MustLoad() })
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(p, []byte("PROMPTD_DOTENV_PROBE=from-file\nPROMPTD_DOTENV_KEEP=from-file\n"), 0o600))
	t.Setenv("PROMPTD_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("PROMPTD_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "from-file", os.Getenv("PROMPTD_DOTENV_PROBE"))
	assert.Equal(t, "from-env", os.Getenv("PROMPTD_DOTENV_KEEP"), "existing env wins")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestEnvReader_Boolean(t *testing.T) {
	var env envReader
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "PROMPTD_BOOL_T" + string(rune('a'+i))
		t.Setenv(k, v)
		assert.True(t, env.boolean(k, false), v)
	}
	for i, v := range []string{"0", "false", " no ", "N", "off", "Off"} {
		k := "PROMPTD_BOOL_F" + string(rune('a'+i))
		t.Setenv(k, v)
		assert.False(t, env.boolean(k, true), v)
	}
	t.Setenv("PROMPTD_BOOL_EMPTY", "")
	assert.True(t, env.boolean("PROMPTD_BOOL_EMPTY", true))
	assert.Empty(t, env.errs)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Nil(t, splitCSV(" , ,"))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		" / ":     "/",
		"v1":      "/v1",
		"/v1/":    "/v1",
		"/api/v1": "/api/v1",
		"//api//": "/api",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeBasePath(in), "%q", in)
	}
}
