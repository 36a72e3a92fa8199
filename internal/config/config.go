// Package config loads and validates scraper service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines the admin API-key guard.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs the Codelco scrape pipeline.
type ScraperConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SearchPath     string `mapstructure:"search_path"`
	UserAgent      string `mapstructure:"user_agent"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SnapshotPrefix string `mapstructure:"snapshot_prefix"`
	ArchivePages   bool   `mapstructure:"archive_pages"`
}

// HeadlessConfig configures the optional headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// StorageConfig selects and parameterizes the snapshot blob store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for scrape-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("scraper.base_url", "https://empleos.codelco.cl")
	v.SetDefault("scraper.search_path", "/search/")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraper.delay_seconds", 1)
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.snapshot_prefix", "empleos_codelco")
	v.SetDefault("scraper.archive_pages", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	if c.Scraper.DelaySeconds < 0 {
		return fmt.Errorf("scraper.delay_seconds must be >= 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	switch c.Storage.Provider {
	case "local", "noop":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// SearchURL joins the base URL and search path.
func (c ScraperConfig) SearchURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + c.SearchPath
}

// RequestDelay converts the politeness delay into a duration.
func (c ScraperConfig) RequestDelay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// RequestTimeout converts the fetch timeout into a duration.
func (c ScraperConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
