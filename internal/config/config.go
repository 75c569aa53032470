// Package config loads service configuration.
//
// Sources, lowest precedence first:
//  1. built-in defaults (setDefaults)
//  2. config.yaml in ".", "./config" or "/etc/rollout" (optional)
//  3. environment variables without prefix, "." replaced by "_"
//     (DATABASE_URL, REDIS_ADDR, CACHE_FLAG_TTL, AGGREGATION_SCHEDULE, ...)
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Events      EventsConfig      `mapstructure:"events"`
	Log         LogConfig         `mapstructure:"log"`
	River       RiverConfig       `mapstructure:"river"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS. An empty allowlist falls back to the local dashboard origins.
	// "*" is honored only with UnsafeAllowAllOrigins.
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. One pool is shared
// by the repository queries and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig contains cache store connection settings. An empty Addr selects
// the in-process store.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// CacheConfig controls flag and decision caching.
type CacheConfig struct {
	FlagTTL         time.Duration `mapstructure:"flag_ttl"`
	DecisionTTL     time.Duration `mapstructure:"decision_ttl"` // 0 disables the decision cache
	WarmUpOnStart   bool          `mapstructure:"warm_up_on_start"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"` // in-process store only
}

// AggregationConfig controls the nightly rollup.
type AggregationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	Timezone  string        `mapstructure:"timezone"`
	Retention time.Duration `mapstructure:"retention"`
}

// Location resolves Timezone. Validate has already rejected bad names.
func (c AggregationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EventsConfig limits event ingestion.
type EventsConfig struct {
	MaxBatchItems int `mapstructure:"max_batch_items"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	EventsPoolSize  int `mapstructure:"events_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rollout")

	// database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if !cfg.Redis.Enabled() {
		logBootstrapWarn("redis.addr is empty; using the in-process cache store, which is not shared between replicas")
	}

	return &cfg, nil
}

// Validate checks for configuration errors that would break startup or the
// nightly schedule.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.FlagTTL <= 0 {
		return fmt.Errorf("cache.flag_ttl must be positive")
	}
	if c.Cache.DecisionTTL < 0 {
		return fmt.Errorf("cache.decision_ttl must not be negative")
	}
	if _, err := time.LoadLocation(c.Aggregation.Timezone); err != nil {
		return fmt.Errorf("aggregation.timezone %q: %w", c.Aggregation.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Aggregation.Schedule); err != nil {
		return fmt.Errorf("aggregation.schedule %q: %w", c.Aggregation.Schedule, err)
	}
	if c.Aggregation.Retention <= 0 {
		return fmt.Errorf("aggregation.retention must be positive")
	}
	if c.Events.MaxBatchItems <= 0 {
		return fmt.Errorf("events.max_batch_items must be positive")
	}
	if c.Worker.GeneralPoolSize <= 0 || c.Worker.EventsPoolSize <= 0 {
		return fmt.Errorf("worker pool sizes must be positive")
	}
	return nil
}

// logBootstrapWarn logs before the global logger exists.
func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rollout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "rollout")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// Redis
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")
	v.SetDefault("redis.pool_size", 20)

	// Cache
	v.SetDefault("cache.flag_ttl", "5m")
	v.SetDefault("cache.decision_ttl", "60s")
	v.SetDefault("cache.warm_up_on_start", true)
	v.SetDefault("cache.janitor_interval", "30s")

	// Aggregation
	v.SetDefault("aggregation.enabled", true)
	v.SetDefault("aggregation.schedule", "0 2 * * *")
	v.SetDefault("aggregation.timezone", "UTC")
	v.SetDefault("aggregation.retention", "2160h")

	// Events
	v.SetDefault("events.max_batch_items", 500)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.events_pool_size", 64)
}
