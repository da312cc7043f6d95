// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Intake    IntakeConfig    `yaml:"intake" mapstructure:"intake"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// FirecrawlConfig holds search/scrape provider settings.
type FirecrawlConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// GeminiConfig holds LLM provider settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// FetchConfig configures the context fetcher. Assets get more results and a
// larger character budget than leadership since tabular/geo content needs
// more source material.
type FetchConfig struct {
	LeadershipLimit    int `yaml:"leadership_limit" mapstructure:"leadership_limit"`
	AssetsLimit        int `yaml:"assets_limit" mapstructure:"assets_limit"`
	LeadershipMaxChars int `yaml:"leadership_max_chars" mapstructure:"leadership_max_chars"`
	AssetsMaxChars     int `yaml:"assets_max_chars" mapstructure:"assets_max_chars"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout returns the per-scrape-request timeout.
func (c FetchConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// ExtractConfig configures the intelligence extractor.
type ExtractConfig struct {
	MaxContextChars int `yaml:"max_context_chars" mapstructure:"max_context_chars"`
}

// PipelineConfig configures orchestration windows.
type PipelineConfig struct {
	FreshnessWindowHours int `yaml:"freshness_window_hours" mapstructure:"freshness_window_hours"`
	ContextTTLHours      int `yaml:"context_ttl_hours" mapstructure:"context_ttl_hours"`
	LeaseTTLMinutes      int `yaml:"lease_ttl_minutes" mapstructure:"lease_ttl_minutes"`
}

// FreshnessWindow returns how recently a company must have been updated to
// skip reprocessing.
func (c PipelineConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowHours) * time.Hour
}

// ContextTTL returns the cached-context lifetime.
func (c PipelineConfig) ContextTTL() time.Duration {
	return time.Duration(c.ContextTTLHours) * time.Hour
}

// LeaseTTL returns how long an unreleased per-name lease survives.
func (c PipelineConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMinutes) * time.Minute
}

// QueueConfig configures the in-process worker queue.
type QueueConfig struct {
	Workers            int `yaml:"workers" mapstructure:"workers"`
	Buffer             int `yaml:"buffer" mapstructure:"buffer"`
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs int `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	AttemptTimeoutSecs int `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
}

// InitialBackoff returns the delay before the second attempt.
func (c QueueConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffSecs) * time.Second
}

// AttemptTimeout returns the per-attempt wall-clock limit.
func (c QueueConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSecs) * time.Second
}

// IntakeConfig configures batch submission limits.
type IntakeConfig struct {
	MaxCompanies int `yaml:"max_companies" mapstructure:"max_companies"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "mintel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.requests_per_second", 2)
	v.SetDefault("firecrawl.burst", 4)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-3-flash-preview")
	v.SetDefault("fetch.leadership_limit", 2)
	v.SetDefault("fetch.assets_limit", 3)
	v.SetDefault("fetch.leadership_max_chars", 12000)
	v.SetDefault("fetch.assets_max_chars", 18000)
	v.SetDefault("fetch.request_timeout_secs", 90)
	v.SetDefault("extract.max_context_chars", 30000)
	v.SetDefault("pipeline.freshness_window_hours", 24)
	v.SetDefault("pipeline.context_ttl_hours", 6)
	v.SetDefault("pipeline.lease_ttl_minutes", 10)
	v.SetDefault("queue.workers", 5)
	v.SetDefault("queue.buffer", 100)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.initial_backoff_secs", 60)
	v.SetDefault("queue.attempt_timeout_secs", 300)
	v.SetDefault("intake.max_companies", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
