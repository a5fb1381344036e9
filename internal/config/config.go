// Package config loads and validates pagewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Blob backends.
const (
	BlobNone   = "none"
	BlobMemory = "memory"
	BlobLocal  = "local"
	BlobGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Checker   CheckerConfig   `mapstructure:"checker"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Email     EmailConfig     `mapstructure:"email"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CheckerConfig governs the check pipeline.
type CheckerConfig struct {
	StoreFullContent bool `mapstructure:"store_full_content"`
}

// FetcherConfig configures the HTTP strategies and the retry chain.
type FetcherConfig struct {
	TimeoutSeconds            int      `mapstructure:"timeout_seconds"`
	AlternativeTimeoutSeconds int      `mapstructure:"alternative_timeout_seconds"`
	Attempts                  int      `mapstructure:"attempts"`
	BackoffMs                 int      `mapstructure:"backoff_ms"`
	MaxBodyBytes              int      `mapstructure:"max_body_bytes"`
	RespectRobots             bool     `mapstructure:"respect_robots"`
	MinContentRunes           int      `mapstructure:"min_content_runes"`
	UserAgents                []string `mapstructure:"user_agents"`
}

// HeadlessConfig configures the headless browser strategy.
type HeadlessConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	IdleTimeoutMs     int    `mapstructure:"idle_timeout_ms"`
	SettleDelayMs     int    `mapstructure:"settle_delay_ms"`
	UserAgent         string `mapstructure:"user_agent"`
	ExecPath          string `mapstructure:"exec_path"`
	NoSandbox         bool   `mapstructure:"no_sandbox"`
}

// RateLimitConfig sets per-host politeness.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// SchedulerConfig controls the in-process due-pass ticker.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig controls access to the relational database.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Path                   string `mapstructure:"path"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// BlobConfig selects where content snapshots are written.
type BlobConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Dir     string `mapstructure:"dir"`
}

// EmailConfig holds the SendGrid settings.
type EmailConfig struct {
	APIKey   string `mapstructure:"api_key"`
	To       string `mapstructure:"to"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// PubSubConfig holds metadata for change-event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	GCPProjectID string  `mapstructure:"gcp_project_id"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from an optional .env file, disk, and the environment.
// With an empty path it looks for pagewatch.{yaml,json,toml} in the working
// directory, /etc/pagewatch, and $HOME/.pagewatch.
func Load(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("pagewatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pagewatch/")
		v.AddConfigPath("$HOME/.pagewatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv reads .env (or PAGEWATCH_ENV_FILE) without overriding the real environment.
func loadDotEnv() error {
	file := os.Getenv("PAGEWATCH_ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// bindLegacyEnv keeps the unprefixed variable names working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"email.api_key": {"PAGEWATCH_EMAIL_API_KEY", "SENDGRID_API_KEY"},
		"email.to":      {"PAGEWATCH_EMAIL_TO", "NOTIFICATION_EMAIL"},
		"email.from":    {"PAGEWATCH_EMAIL_FROM", "FROM_EMAIL"},
		"database.dsn":  {"PAGEWATCH_DATABASE_DSN", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("checker.store_full_content", true)
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.alternative_timeout_seconds", 15)
	v.SetDefault("fetcher.attempts", 3)
	v.SetDefault("fetcher.backoff_ms", 2000)
	v.SetDefault("fetcher.max_body_bytes", 10<<20)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.min_content_runes", 50)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.idle_timeout_ms", 10000)
	v.SetDefault("headless.settle_delay_ms", 2000)
	v.SetDefault("headless.user_agent", "")
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.no_sandbox", false)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_seconds", 60)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("database.path", "pagewatch.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)
	v.SetDefault("blob.backend", BlobNone)
	v.SetDefault("blob.prefix", "snapshots")
	v.SetDefault("blob.dir", "snapshots")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("email.from_name", "pagewatch")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("telemetry.service_name", "pagewatch")
	v.SetDefault("telemetry.gcp_project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.Attempts <= 0 {
		return fmt.Errorf("fetcher.attempts must be > 0")
	}
	if c.Fetcher.BackoffMs < 0 {
		return fmt.Errorf("fetcher.backoff_ms must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("ratelimit.rps must be >= 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0 when the scheduler is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	case StorageSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, sqlite", c.Storage.Backend)
	}
	switch c.Blob.Backend {
	case BlobNone, BlobMemory:
	case BlobLocal:
		if c.Blob.Dir == "" {
			return fmt.Errorf("blob.dir must be set for the local blob backend")
		}
	case BlobGCS:
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket must be set for the gcs blob backend")
		}
	default:
		return fmt.Errorf("blob.backend %q is not one of none, memory, local, gcs", c.Blob.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// RequestTimeout is the per-request deadline enforced by the API.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// FetchTimeout is the simple strategy timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// AlternativeTimeout is the per-request timeout of the alternatives strategy.
func (c Config) AlternativeTimeout() time.Duration {
	return time.Duration(c.Fetcher.AlternativeTimeoutSeconds) * time.Second
}

// FetchBackoff is the base delay between chain attempts.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.Fetcher.BackoffMs) * time.Millisecond
}

// SchedulerInterval is the due-pass tick period.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}
