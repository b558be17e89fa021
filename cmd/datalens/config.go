// Package main provides the DataLens CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the DataLens configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Cache     CacheConfig     `yaml:"cache"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Verbose   bool            `yaml:"-"` // set via CLI flag
}

// DatabaseConfig contains the metadata database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database path (default: data/datalens.db)
}

// WarehouseConfig contains ClickHouse connection settings.
type WarehouseConfig struct {
	Addresses           []string `yaml:"addresses"` // host:port list
	Database            string   `yaml:"database"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"-"` // from DATALENS_CLICKHOUSE_PASSWORD
	MaxOpenConns        int      `yaml:"max_open_conns"`
	MaxIdleConns        int      `yaml:"max_idle_conns"`
	DialTimeoutSeconds  int      `yaml:"dial_timeout_seconds"`
	QueryTimeoutSeconds int      `yaml:"query_timeout_seconds"` // default: 300
	Compression         bool     `yaml:"compression"`
	MaxRows             int      `yaml:"max_rows"` // safety limit for unbounded SELECTs
}

// CacheConfig contains query result cache settings.
type CacheConfig struct {
	TTLMinutes    int   `yaml:"ttl_minutes"` // default: 60
	MaxSize       int64 `yaml:"max_size"`    // default: 1000
	EvictionSlack int64 `yaml:"eviction_slack"`
}

// TTL returns the configured entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// AlertingConfig contains alert check settings.
type AlertingConfig struct {
	Concurrency int `yaml:"concurrency"` // parallel checks per batch (default: 5)
}

// NotifierConfig contains notification transport settings.
type NotifierConfig struct {
	Email     EmailConfig     `yaml:"email"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// EmailConfig contains SMTP settings. The password comes from
// DATALENS_SMTP_PASSWORD.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// Enabled reports whether email notifications are configured.
func (c EmailConfig) Enabled() bool {
	return c.Host != ""
}

// WebhookConfig contains chat webhook settings.
type WebhookConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
}

// Enabled reports whether chat notifications are configured.
func (c WebhookConfig) Enabled() bool {
	return c.URL != ""
}

// RateLimitConfig contains notification rate limit settings.
type RateLimitConfig struct {
	MaxPerWindow  int  `yaml:"max_per_window"` // default: 10
	WindowSeconds int  `yaml:"window_seconds"` // default: 60
	Disabled      bool `yaml:"disabled"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default: :9090
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.applyEnv()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/datalens.db"
	}
	if len(c.Warehouse.Addresses) == 0 {
		c.Warehouse.Addresses = []string{"localhost:9000"}
	}
	if c.Warehouse.Database == "" {
		c.Warehouse.Database = "default"
	}
	if c.Warehouse.QueryTimeoutSeconds == 0 {
		c.Warehouse.QueryTimeoutSeconds = 300
	}
	if c.Warehouse.MaxRows == 0 {
		c.Warehouse.MaxRows = 1000
	}
	if c.Cache.TTLMinutes == 0 {
		c.Cache.TTLMinutes = 60
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.EvictionSlack == 0 {
		c.Cache.EvictionSlack = 10
	}
	if c.Alerting.Concurrency == 0 {
		c.Alerting.Concurrency = 5
	}
	if c.Notifier.RateLimit.MaxPerWindow == 0 {
		c.Notifier.RateLimit.MaxPerWindow = 10
	}
	if c.Notifier.RateLimit.WindowSeconds == 0 {
		c.Notifier.RateLimit.WindowSeconds = 60
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}

// applyEnv pulls secrets from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATALENS_CLICKHOUSE_PASSWORD"); v != "" {
		c.Warehouse.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Warehouse.Addresses) == 0 {
		return fmt.Errorf("warehouse.addresses is required")
	}
	if c.Alerting.Concurrency < 1 {
		return fmt.Errorf("alerting.concurrency must be at least 1")
	}
	if c.Cache.TTLMinutes < 0 {
		return fmt.Errorf("cache.ttl_minutes must not be negative")
	}
	if c.Notifier.Email.Enabled() {
		if c.Notifier.Email.Port == 0 {
			return fmt.Errorf("notifier.email.port is required when email is configured")
		}
		if c.Notifier.Email.From == "" {
			return fmt.Errorf("notifier.email.from is required when email is configured")
		}
		if len(c.Notifier.Email.Recipients) == 0 {
			return fmt.Errorf("notifier.email.recipients is required when email is configured")
		}
	}
	return nil
}
