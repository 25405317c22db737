// Package config loads and validates analyzer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Browser drivers understood by the session factory.
const (
	DriverChromedp = "chromedp"
	DriverStatic   = "static"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
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

// AnalyzerConfig governs the worker pool and the analysis pipeline.
type AnalyzerConfig struct {
	Workers                int `mapstructure:"workers"`
	QueueDepth             int `mapstructure:"queue_depth"`
	MaxReviewsDefault      int `mapstructure:"max_reviews_default"`
	TopKeywords            int `mapstructure:"top_keywords"`
	ResultTTLSeconds       int `mapstructure:"result_ttl_seconds"`
	JanitorIntervalSeconds int `mapstructure:"janitor_interval_seconds"`
}

// BrowserConfig configures the page session driver.
type BrowserConfig struct {
	Driver             string `mapstructure:"driver"`
	Headless           bool   `mapstructure:"headless"`
	UserAgent          string `mapstructure:"user_agent"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int    `mapstructure:"wait_timeout_seconds"`
	SettleMillis       int    `mapstructure:"settle_millis"`
	// RateLimitRPS paces page loads per storefront host; <= 0 disables pacing.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// SentimentConfig points at an optional lexicon override file.
type SentimentConfig struct {
	LexiconPath string `mapstructure:"lexicon_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("analyzer.workers", 2)
	v.SetDefault("analyzer.queue_depth", 32)
	v.SetDefault("analyzer.max_reviews_default", 100)
	v.SetDefault("analyzer.top_keywords", 20)
	v.SetDefault("analyzer.result_ttl_seconds", 3600)
	v.SetDefault("analyzer.janitor_interval_seconds", 60)
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.wait_timeout_seconds", 10)
	v.SetDefault("browser.settle_millis", 2000)
	v.SetDefault("browser.rate_limit_rps", 1.0)
	v.SetDefault("browser.rate_limit_burst", 2)
	v.SetDefault("sentiment.lexicon_path", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Analyzer.Workers <= 0 {
		return fmt.Errorf("analyzer.workers must be > 0")
	}
	if c.Analyzer.QueueDepth < 0 {
		return fmt.Errorf("analyzer.queue_depth must be >= 0")
	}
	if c.Analyzer.MaxReviewsDefault <= 0 {
		return fmt.Errorf("analyzer.max_reviews_default must be > 0")
	}
	if c.Analyzer.TopKeywords <= 0 {
		return fmt.Errorf("analyzer.top_keywords must be > 0")
	}
	switch c.Browser.Driver {
	case DriverChromedp, DriverStatic:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverStatic, c.Browser.Driver)
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	return nil
}

// NavTimeout returns the per-navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// WaitTimeout returns the bound for a single element wait.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Browser.WaitTimeoutSeconds) * time.Second
}

// Settle returns the pause applied after clicks and navigation.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Browser.SettleMillis) * time.Millisecond
}

// ResultTTL returns how long finished analyses are retained.
func (c Config) ResultTTL() time.Duration {
	return time.Duration(c.Analyzer.ResultTTLSeconds) * time.Second
}

// JanitorInterval returns how often expired analyses are swept.
func (c Config) JanitorInterval() time.Duration {
	return time.Duration(c.Analyzer.JanitorIntervalSeconds) * time.Second
}

// RequestTimeout returns the HTTP handler timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
