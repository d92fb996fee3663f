package config

import (
	"fmt"
	"time"

	"github.com/utafrali/redeemables/internal/domain"
	pkgconfig "github.com/utafrali/redeemables/pkg/config"
)

// Session lock backends.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config holds all configuration for the redeemables service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"REDEEMABLES_HTTP_PORT" envDefault:"8012"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"redeemables"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"redeemables_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"redeemables"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Queries slower than this are logged; 0 disables.
	SlowQueryMS int `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Sessions and caching
	SessionBackend  string `env:"SESSION_LOCK_BACKEND" envDefault:"postgres"`
	VoucherCacheTTL int    `env:"VOUCHER_CACHE_TTL_SECONDS" envDefault:"30"`

	// Stacking rules. A rules file, when set, holds one entry per tenant and
	// replaces the defaults below.
	StackingRulesFile string `env:"STACKING_RULES_FILE" envDefault:""`

	StackingApplicationMode      string   `env:"STACKING_APPLICATION_MODE" envDefault:"PARTIAL"`
	StackingRedeemablesLimit     int      `env:"STACKING_REDEEMABLES_LIMIT" envDefault:"30"`
	StackingApplicableLimit      int      `env:"STACKING_APPLICABLE_LIMIT" envDefault:"5"`
	StackingPerCategoryLimit     int      `env:"STACKING_APPLICABLE_PER_CATEGORY_LIMIT" envDefault:"0"`
	StackingExclusiveLimit       int      `env:"STACKING_EXCLUSIVE_LIMIT" envDefault:"1"`
	StackingExclusivePerCategory int      `env:"STACKING_EXCLUSIVE_PER_CATEGORY_LIMIT" envDefault:"0"`
	StackingExclusiveCategories  []string `env:"STACKING_EXCLUSIVE_CATEGORIES" envSeparator:","`
	StackingJointCategories      []string `env:"STACKING_JOINT_CATEGORIES" envSeparator:","`
	StackingSortingRule          string   `env:"STACKING_SORTING_RULE" envDefault:"NONE"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load redeemables config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	if c.SlowQueryMS < 0 {
		return fmt.Errorf("LOG_SLOW_QUERY_MS must not be negative")
	}
	switch c.SessionBackend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_LOCK_BACKEND must be %q or %q, got %q", SessionBackendPostgres, SessionBackendRedis, c.SessionBackend)
	}
	if c.VoucherCacheTTL < 0 {
		return fmt.Errorf("VOUCHER_CACHE_TTL_SECONDS must not be negative")
	}
	return validateRules(c.DefaultStackingRules())
}

// DefaultStackingRules returns the stacking rules built from the STACKING_*
// variables.
func (c *Config) DefaultStackingRules() domain.StackingRules {
	return domain.StackingRules{
		ApplicationMode:                  domain.ApplicationMode(c.StackingApplicationMode),
		RedeemablesLimit:                 c.StackingRedeemablesLimit,
		ApplicableRedeemablesLimit:       c.StackingApplicableLimit,
		ApplicableRedeemablesPerCategory: c.StackingPerCategoryLimit,
		ApplicableExclusiveLimit:         c.StackingExclusiveLimit,
		ApplicableExclusivePerCategory:   c.StackingExclusivePerCategory,
		ExclusiveCategories:              c.StackingExclusiveCategories,
		JointCategories:                  c.StackingJointCategories,
		SortingRule:                      domain.SortingRule(c.StackingSortingRule),
	}
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}

// CacheTTL returns VOUCHER_CACHE_TTL_SECONDS as a duration. Zero disables the
// voucher cache.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.VoucherCacheTTL) * time.Second
}
