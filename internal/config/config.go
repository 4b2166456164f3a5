// Package config loads and validates service configuration via Viper.
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
	Runner   RunnerConfig   `mapstructure:"runner"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RunnerConfig points at the external workflow runner and carries the shared
// webhook secret its callbacks must present.
type RunnerConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	WebhookAuthHeader string `mapstructure:"webhook_auth_header"`
	WebhookAuthToken  string `mapstructure:"webhook_auth_token"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// ScraperConfig supplies defaults applied to job parameters the caller omits.
type ScraperConfig struct {
	DefaultPropertyTypes []string `mapstructure:"default_property_types"`
	DefaultWaitTime      int      `mapstructure:"default_wait_time"`
	DefaultMaxAcres      float64  `mapstructure:"default_max_acres"`
}

// DispatchConfig governs the async runner-trigger pipeline.
type DispatchConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
	Workers    int `mapstructure:"workers"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADENGINE")
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
	v.SetDefault("server.port", 5000)
	v.SetDefault("runner.base_url", "http://localhost:5678")
	v.SetDefault("runner.webhook_auth_header", "x-runner-webhook-auth")
	// Registered empty so environment overrides are visible to Unmarshal.
	v.SetDefault("runner.webhook_auth_token", "")
	v.SetDefault("runner.api_key", "")
	v.SetDefault("runner.timeout_seconds", 30)
	v.SetDefault("scraper.default_property_types", []string{"D1", "E1"})
	v.SetDefault("scraper.default_wait_time", 2)
	v.SetDefault("scraper.default_max_acres", 10000)
	v.SetDefault("dispatch.queue_depth", 64)
	v.SetDefault("dispatch.workers", 2)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Runner.BaseURL == "" {
		return fmt.Errorf("runner.base_url must be set")
	}
	if c.Runner.WebhookAuthHeader == "" {
		return fmt.Errorf("runner.webhook_auth_header must be set")
	}
	if c.Runner.WebhookAuthToken == "" {
		return fmt.Errorf("runner.webhook_auth_token must be set")
	}
	if c.Runner.TimeoutSeconds <= 0 {
		return fmt.Errorf("runner.timeout_seconds must be > 0")
	}
	if c.Dispatch.QueueDepth <= 0 {
		return fmt.Errorf("dispatch.queue_depth must be > 0")
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be > 0")
	}
	return nil
}

// RunnerTimeout converts the runner timeout config into a duration.
func (c Config) RunnerTimeout() time.Duration {
	return time.Duration(c.Runner.TimeoutSeconds) * time.Second
}
