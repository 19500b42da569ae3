package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Vincent gallery backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Generation GenerationConfig `mapstructure:"generation"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// PublicURL is the externally reachable base URL of this instance, used
	// to build asset links for filesystem-backed storage.
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters. Options holds
// extra driver parameters appended to the DSN, e.g. sslmode for Postgres.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// StorageConfig configures the blob store holding generated assets.
type StorageConfig struct {
	Root       string `mapstructure:"root"`
	PublicPath string `mapstructure:"public_path"`
}

// ProvidersConfig groups the external AI provider settings.
type ProvidersConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Gemini API credentials and model selection.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	TextModel  string        `mapstructure:"text_model"`
	ImageModel string        `mapstructure:"image_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig controls the daily generation trigger.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Spec     string `mapstructure:"spec"`
	Timezone string `mapstructure:"timezone"`
}

// GenerationConfig tunes the pipeline itself.
type GenerationConfig struct {
	HistoryWindow int           `mapstructure:"history_window"`
	AspectRatio   string        `mapstructure:"aspect_ratio"`
	ReferenceURL  string        `mapstructure:"reference_url"`
	MaxDimension  int           `mapstructure:"max_dimension"`
	JPEGQuality   int           `mapstructure:"jpeg_quality"`
	Budget        time.Duration `mapstructure:"budget"`
	// DailyLock refuses a run when a record already exists for the current
	// calendar day. Off by default: the daily schedule and the manual
	// endpoint are allowed to coexist unless an operator opts in.
	DailyLock bool            `mapstructure:"daily_lock"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls the per-caller limiter on the manual endpoint.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerMinute float64       `mapstructure:"per_minute"`
	Burst     int           `mapstructure:"burst"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// SeedConfig protects and feeds the one-time backfill endpoint.
type SeedConfig struct {
	APIKey string `mapstructure:"api_key"`
	Dir    string `mapstructure:"dir"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("VINCENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate checks settings that have no workable default.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(c.Providers.Gemini.APIKey) == "" {
		return errors.New("providers.gemini.api_key must be configured")
	}

	if c.Scheduler.Enabled {
		if strings.TrimSpace(c.Scheduler.Spec) == "" {
			return errors.New("scheduler.spec must be configured when the scheduler is enabled")
		}
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "http://localhost:8000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/vincent.sqlite")

	v.SetDefault("storage.root", "./data/media")
	v.SetDefault("storage.public_path", "/media")

	v.SetDefault("providers.gemini.text_model", "gemini-2.0-flash")
	v.SetDefault("providers.gemini.image_model", "gemini-2.0-flash-preview-image-generation")
	v.SetDefault("providers.gemini.timeout", "2m")

	// Daily at 00:15 Paris time, matching the gallery's original cadence.
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "15 0 * * *")
	v.SetDefault("scheduler.timezone", "Europe/Paris")

	v.SetDefault("generation.history_window", 10)
	v.SetDefault("generation.aspect_ratio", "16:9")
	v.SetDefault("generation.reference_url", "")
	v.SetDefault("generation.max_dimension", 800)
	v.SetDefault("generation.jpeg_quality", 80)
	v.SetDefault("generation.budget", "10m")
	v.SetDefault("generation.daily_lock", false)
	v.SetDefault("generation.rate_limit.enabled", true)
	v.SetDefault("generation.rate_limit.per_minute", 1)
	v.SetDefault("generation.rate_limit.burst", 1)
	v.SetDefault("generation.rate_limit.ttl", "10m")

	v.SetDefault("seed.api_key", "")
	v.SetDefault("seed.dir", "./assets/vincent")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
