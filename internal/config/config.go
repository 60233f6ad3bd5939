// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. The
// core packages receive plain sub-structs; nothing below this package
// reads the environment itself.
type Config struct {
	Index      IndexConfig      `mapstructure:"index"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Export     ExportConfig     `mapstructure:"export"`
	DB         DBConfig         `mapstructure:"db"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// IndexConfig locates the index page enumerating all entities.
type IndexConfig struct {
	URL     string `mapstructure:"url"`
	BaseURL string `mapstructure:"base_url"`
}

// FetchConfig configures HTTP client retry behavior.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`

	// RPS caps the request rate per host; zero disables throttling.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// PipelineConfig governs the worker pool and per-job limits.
type PipelineConfig struct {
	Workers           int `mapstructure:"workers"`
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
	CharLimit         int `mapstructure:"char_limit"`
}

// SummarizerConfig configures the external text-generation client. An
// empty API key disables summarization entirely.
type SummarizerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	MaxRetries int    `mapstructure:"max_retries"`
	Workers    int    `mapstructure:"workers"`
}

// ExportConfig sets output paths for the CSV and stats artifacts.
type ExportConfig struct {
	CSVPath   string `mapstructure:"csv_path"`
	StatsPath string `mapstructure:"stats_path"`
}

// DBConfig controls the optional Postgres record store. An empty DSN
// disables the store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ServerConfig controls the status/metrics HTTP surface.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXTRACTOR")
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
	v.SetDefault("index.url", "https://de.wikipedia.org/wiki/Liste_der_St%C3%A4dte_und_Gemeinden_in_Nordrhein-Westfalen")
	v.SetDefault("index.base_url", "https://de.wikipedia.org")
	v.SetDefault("fetch.user_agent", "gemeinden-extractor/0.3")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 500)
	v.SetDefault("fetch.backoff_max_ms", 10000)
	v.SetDefault("fetch.rps", 4.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.job_timeout_seconds", 60)
	v.SetDefault("pipeline.char_limit", 10000)
	v.SetDefault("summarizer.base_url", "https://api.anthropic.com")
	// Empty default so AutomaticEnv can see the env key.
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.model", "claude-3-5-haiku-latest")
	v.SetDefault("summarizer.max_tokens", 512)
	v.SetDefault("summarizer.max_retries", 3)
	v.SetDefault("summarizer.workers", 3)
	v.SetDefault("export.csv_path", "output.csv")
	v.SetDefault("export.stats_path", "")
	// Empty default so AutomaticEnv can see the env key.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "gemeinden")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Index.URL == "" {
		return fmt.Errorf("index.url must be set")
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.CharLimit <= 0 {
		return fmt.Errorf("pipeline.char_limit must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// FetchTimeout converts the configured fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// JobTimeout converts the configured per-job budget into a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second
}
