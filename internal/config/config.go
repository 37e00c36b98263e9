package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	CacheModeTiered = "tiered"
	CacheModeRedis  = "redis"
	CacheModeMemory = "memory"
	CacheModeNone   = "none"
)

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	DBDriver    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheMode                string
	CachePrefix              string
	CacheLocalTTL            time.Duration
	CacheInvalidationChannel string

	JWTIssuer        string
	JWTAudience      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	TokenPepper      string

	CookieSecure bool
	CookieDomain string

	AuthRateLimitPerMin int

	RootFullName string
	RootEmail    string
	RootPassword string
	BcryptCost   int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Load reads .env (existing environment variables win) and builds Config from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := FromViper(newViper())
	recordConfigValidationEvent(context.Background(), envOrUnknown(cfg), outcomeOf(err), classifyConfigLoadError(err))
	return cfg, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_MODE", CacheModeTiered)
	v.SetDefault("CACHE_PREFIX", "catalog")
	v.SetDefault("CACHE_LOCAL_TTL", "60s")
	v.SetDefault("CACHE_INVALIDATION_CHANNEL", "catalog:cache:invalidate")
	v.SetDefault("JWT_ISSUER", "catalog-backend")
	v.SetDefault("JWT_AUDIENCE", "catalog-api")
	v.SetDefault("JWT_ACCESS_TTL", "72h")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("AUTH_RATE_LIMIT_PER_MIN", 20)
	v.SetDefault("ROOT_FULLNAME", "admin")
	v.SetDefault("ROOT_EMAIL", "admin@example.com")
	v.SetDefault("ROOT_PASSWORD", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTEL_SERVICE_NAME", "catalog-backend")
	v.SetDefault("OTEL_ENVIRONMENT", "development")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_METRICS_ENABLED", false)
	v.SetDefault("OTEL_TRACING_ENABLED", false)
	v.SetDefault("OTEL_LOGS_ENABLED", false)
	v.SetDefault("OTEL_METRICS_EXPORT_INTERVAL", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	return v
}

// FromViper builds and validates Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:                      strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		HTTPAddr:                 v.GetString("HTTP_ADDR"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		DBDriver:                 strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		RedisAddr:                v.GetString("REDIS_ADDR"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		CacheMode:                strings.ToLower(strings.TrimSpace(v.GetString("CACHE_MODE"))),
		CachePrefix:              v.GetString("CACHE_PREFIX"),
		CacheInvalidationChannel: v.GetString("CACHE_INVALIDATION_CHANNEL"),
		JWTIssuer:                v.GetString("JWT_ISSUER"),
		JWTAudience:              v.GetString("JWT_AUDIENCE"),
		JWTAccessSecret:          v.GetString("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:         v.GetString("JWT_REFRESH_SECRET"),
		TokenPepper:              v.GetString("TOKEN_PEPPER"),
		CookieSecure:             v.GetBool("COOKIE_SECURE"),
		CookieDomain:             v.GetString("COOKIE_DOMAIN"),
		AuthRateLimitPerMin:      v.GetInt("AUTH_RATE_LIMIT_PER_MIN"),
		RootFullName:             v.GetString("ROOT_FULLNAME"),
		RootEmail:                v.GetString("ROOT_EMAIL"),
		RootPassword:             v.GetString("ROOT_PASSWORD"),
		BcryptCost:               v.GetInt("BCRYPT_COST"),
		OTELServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		OTELEnvironment:          v.GetString("OTEL_ENVIRONMENT"),
		OTELExporterOTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELExporterOTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		OTELMetricsEnabled:       v.GetBool("OTEL_METRICS_ENABLED"),
		OTELTracingEnabled:       v.GetBool("OTEL_TRACING_ENABLED"),
		OTELLogsEnabled:          v.GetBool("OTEL_LOGS_ENABLED"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CACHE_LOCAL_TTL", &cfg.CacheLocalTTL},
		{"JWT_ACCESS_TTL", &cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", &cfg.JWTRefreshTTL},
		{"OTEL_METRICS_EXPORT_INTERVAL", &cfg.OTELMetricsExportInterval},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(d.key)))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if cfg.IsProduction() {
		cfg.CookieSecure = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres, mysql or sqlite, got %q", c.DBDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.CacheMode {
	case CacheModeTiered, CacheModeRedis, CacheModeMemory, CacheModeNone:
	default:
		errs = append(errs, fmt.Errorf("CACHE_MODE must be tiered, redis, memory or none, got %q", c.CacheMode))
	}
	if (c.CacheMode == CacheModeTiered || c.CacheMode == CacheModeRedis) && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for redis-backed cache modes"))
	}
	if c.CacheMode == CacheModeTiered && c.CacheLocalTTL <= 0 {
		errs = append(errs, errors.New("CACHE_LOCAL_TTL must be positive"))
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be at least 32 bytes"))
	}
	if len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be at least 32 bytes"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must exceed JWT_ACCESS_TTL"))
	}
	if len(c.TokenPepper) < 16 {
		errs = append(errs, errors.New("TOKEN_PEPPER must be at least 16 bytes"))
	}
	if c.AuthRateLimitPerMin < 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_PER_MIN must not be negative"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.OTELMetricsEnabled && c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, errors.New("OTEL_METRICS_EXPORT_INTERVAL must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}

func envOrUnknown(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Env
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
