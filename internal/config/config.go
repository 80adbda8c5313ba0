// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hadith-ingest/internal/storage/local"
)

// EnvPrefix is prepended to every environment override, e.g. HADITH_SERVER_PORT.
const EnvPrefix = "HADITH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name; empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// SourceConfig points the adapters at upstream hosts and paces them.
type SourceConfig struct {
	CDNBaseURL       string  `mapstructure:"cdn_base_url"`
	SunnahBaseURL    string  `mapstructure:"sunnah_base_url"`
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	RPS              float64 `mapstructure:"rps"`
	Burst            int     `mapstructure:"burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects the corpus database.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// ArchiveConfig selects where raw upstream payloads are kept.
type ArchiveConfig struct {
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Ingest sources. Auto reads the CDN and falls back to sunnah.com pages.
const (
	SourceAuto   = "auto"
	SourceCDN    = "cdn"
	SourceSunnah = "sunnah"
)

// IngestConfig governs the job queue and the write path.
type IngestConfig struct {
	// Source is the default for triggers that do not name one.
	Source            string `mapstructure:"source"`
	Workers           int    `mapstructure:"workers"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	BatchSize         int    `mapstructure:"batch_size"`
	BatchDelayMs      int    `mapstructure:"batch_delay_ms"`
	JobTimeoutMinutes int    `mapstructure:"job_timeout_minutes"`
	MaxSections       int    `mapstructure:"max_sections"`
	MissThreshold     int    `mapstructure:"miss_threshold"`
}

// ProgressConfig tunes the live registry, its push stream and the event hub.
type ProgressConfig struct {
	TTLMinutes       int  `mapstructure:"ttl_minutes"`
	MaxWarnings      int  `mapstructure:"max_warnings"`
	StreamIntervalMs int  `mapstructure:"stream_interval_ms"`
	StreamMaxMinutes int  `mapstructure:"stream_max_minutes"`
	LogEnabled       bool `mapstructure:"log_enabled"`
	BufferSize       int  `mapstructure:"buffer_size"`
	Batch            ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs    int                 `mapstructure:"sink_timeout_ms"`
}

// ProgressBatchConfig bounds how many events the hub hands a sink at once.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("source.cdn_base_url", "https://cdn.jsdelivr.net/gh/fawazahmed0/hadith-api@1/editions")
	v.SetDefault("source.sunnah_base_url", "https://sunnah.com")
	v.SetDefault("source.user_agent", "hadith-ingest/0.1")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.backoff_initial_ms", 500)
	v.SetDefault("source.backoff_max_ms", 8000)
	v.SetDefault("source.rps", 4.0)
	v.SetDefault("source.burst", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.migrate", true)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.local.base_dir", "data/raw")
	v.SetDefault("ingest.source", SourceAuto)
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.queue_depth", 16)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.batch_delay_ms", 50)
	v.SetDefault("ingest.job_timeout_minutes", 120)
	v.SetDefault("ingest.max_sections", 300)
	v.SetDefault("ingest.miss_threshold", 5)
	v.SetDefault("progress.ttl_minutes", 60)
	v.SetDefault("progress.max_warnings", 500)
	v.SetDefault("progress.stream_interval_ms", 1000)
	v.SetDefault("progress.stream_max_minutes", 60)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if !slices.Contains([]string{DriverMemory, DriverSQLite, DriverPostgres}, c.Store.Driver) {
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
	}
	if c.Store.Driver != DriverMemory && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set for the %s driver", c.Store.Driver)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, ArchiveLocal:
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	switch c.Ingest.Source {
	case "", SourceAuto, SourceCDN, SourceSunnah:
	default:
		return fmt.Errorf("ingest.source %q is not one of auto, cdn, sunnah", c.Ingest.Source)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > 100 {
		return fmt.Errorf("ingest.batch_size must be within [1, 100]")
	}
	if c.Ingest.MaxSections <= 0 {
		return fmt.Errorf("ingest.max_sections must be > 0")
	}
	if c.Ingest.MissThreshold <= 0 {
		return fmt.Errorf("ingest.miss_threshold must be > 0")
	}
	if c.Progress.StreamIntervalMs <= 0 {
		return fmt.Errorf("progress.stream_interval_ms must be > 0")
	}
	return nil
}

// RequestTimeout bounds one upstream attempt.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// JobTimeout bounds one collection run; zero means unbounded.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Ingest.JobTimeoutMinutes) * time.Minute
}

// BatchDelay is the pause between create chunks.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Ingest.BatchDelayMs) * time.Millisecond
}

// ProgressTTL is how long finished jobs stay visible.
func (c Config) ProgressTTL() time.Duration {
	return time.Duration(c.Progress.TTLMinutes) * time.Minute
}

// StreamInterval is the push period of the progress stream.
func (c Config) StreamInterval() time.Duration {
	return time.Duration(c.Progress.StreamIntervalMs) * time.Millisecond
}

// StreamMaxDuration caps one progress stream connection.
func (c Config) StreamMaxDuration() time.Duration {
	return time.Duration(c.Progress.StreamMaxMinutes) * time.Minute
}
