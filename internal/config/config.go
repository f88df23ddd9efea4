package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenIssuer        string
	TokenAudience      string
	RefreshCookieName  string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	OTelEnabled      bool
	OTelEndpoint     string
	OTelSampleRatio  float64

	MigrateOnStart bool

	TariffCacheTTL      time.Duration
	PricingFloorAtZero  bool
	DefaultMarkupPct    decimal.Decimal
	GoodsLockTTL        time.Duration
	IdempotencyTTL      time.Duration
	ReportExportTTL     time.Duration
	ReportExportMaxRows int

	AuditEnabled      bool
	AuditSamplingRate float64

	RateLimitPerMinute int
	LoginRateLimit     int
	LoginRateWindow    time.Duration
	BodyLimitBytes     int64
	ShutdownTimeout    time.Duration

	WorkerConcurrency int
	WorkerMetricsAddr string
}

// Load reads configuration from the environment, after merging an optional
// .env file. Malformed optional values fall back to their defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	e := envReader{k: k}

	cfg := &Config{
		AppEnv:             e.str("APP_ENV", "development"),
		Port:               e.str("PORT", "8080"),
		DatabaseURL:        e.str("DATABASE_URL", ""),
		RedisURL:           e.str("REDIS_URL", ""),
		JWTSecret:          e.str("JWT_SECRET", ""),
		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS"),
		AccessTokenTTL:     e.dur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    e.dur("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		TokenIssuer:        e.str("TOKEN_ISSUER", "cargo-backoffice"),
		TokenAudience:      e.str("TOKEN_AUDIENCE", "cargo-admin"),
		RefreshCookieName:  e.str("REFRESH_COOKIE_NAME", "refresh_token"),

		LogFormat:        e.str("LOG_FORMAT", "json"),
		LogLevel:         e.str("LOG_LEVEL", "info"),
		MetricsNamespace: e.str("METRICS_NAMESPACE", "cargo"),
		MetricsBuckets:   e.str("METRICS_BUCKETS_MS", ""),
		OTelEnabled:      e.flag("OTEL_ENABLED", false),
		OTelEndpoint:     e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelSampleRatio:  e.number("OTEL_SAMPLE_RATIO", 1),

		MigrateOnStart: e.flag("MIGRATE_ON_START", true),

		TariffCacheTTL:      e.dur("TARIFF_CACHE_TTL", 5*time.Minute),
		PricingFloorAtZero:  e.flag("PRICING_FLOOR_AT_ZERO", false),
		DefaultMarkupPct:    e.dec("DEFAULT_MARKUP_PERCENT"),
		GoodsLockTTL:        e.dur("GOODS_LOCK_TTL", 10*time.Second),
		IdempotencyTTL:      e.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		ReportExportTTL:     e.dur("REPORT_EXPORT_TTL", time.Hour),
		ReportExportMaxRows: e.integer("REPORT_EXPORT_MAX_ROWS", 50000),

		AuditEnabled:      e.flag("AUDIT_ENABLED", true),
		AuditSamplingRate: e.number("AUDIT_SAMPLING_RATE", 1),

		RateLimitPerMinute: e.integer("RATE_LIMIT_PER_MINUTE", 600),
		LoginRateLimit:     e.integer("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:    e.dur("LOGIN_RATE_WINDOW", time.Minute),
		BodyLimitBytes:     int64(e.integer("BODY_LIMIT_BYTES", 10<<20)),
		ShutdownTimeout:    e.dur("SHUTDOWN_TIMEOUT", 15*time.Second),

		WorkerConcurrency: e.integer("WORKER_CONCURRENCY", 5),
		WorkerMetricsAddr: e.str("WORKER_METRICS_ADDR", ":9091"),
	}

	var missing []string
	for name, v := range map[string]string{"DATABASE_URL": cfg.DatabaseURL, "REDIS_URL": cfg.RedisURL, "JWT_SECRET": cfg.JWTSecret} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// envReader reads typed values from the loaded environment.
type envReader struct {
	k *koanf.Koanf
}

func (e envReader) raw(key string) string {
	return strings.TrimSpace(e.k.String(key))
}

func (e envReader) str(key, fallback string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return fallback
}

func (e envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e envReader) dur(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(e.raw(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (e envReader) flag(key string, fallback bool) bool {
	switch strings.ToLower(e.raw(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func (e envReader) integer(key string, fallback int) int {
	v, err := strconv.Atoi(e.raw(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (e envReader) number(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(e.raw(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (e envReader) dec(key string) decimal.Decimal {
	v, err := decimal.NewFromString(e.raw(key))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
