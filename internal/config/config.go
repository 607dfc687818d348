package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Logger    LoggerConfig     `yaml:"logger"`
	Auth      AuthConfig       `yaml:"auth"`
	Signals   SignalsConfig    `yaml:"signals"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// AuthConfig represents authentication configuration for the web API
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	BcryptCost      int    `yaml:"bcrypt_cost"`
}

// SignalsConfig represents signal queue configuration
type SignalsConfig struct {
	TTLSeconds               int `yaml:"ttl_seconds"`
	IdempotencyWindowSeconds int `yaml:"idempotency_window_seconds"`
	SweepIntervalSeconds     int `yaml:"sweep_interval_seconds"`
	MaxPendingPerAccount     int `yaml:"max_pending_per_account"`
	BalanceMaxAgeSeconds     int `yaml:"balance_max_age_seconds"`
}

// RateLimitConfig represents per-credential request rate limits
type RateLimitConfig struct {
	WebhookPerMinute int `yaml:"webhook_per_minute"`
	PollPerMinute    int `yaml:"poll_per_minute"`
}

// EndpointConfig represents a downstream notification endpoint
type EndpointConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // telegram, webhook
	URL      string `yaml:"url"`
	Token    string `yaml:"token,omitempty"`
	ChatID   string `yaml:"chat_id,omitempty"`
	IsActive bool   `yaml:"is_active"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Default returns a configuration with all defaults applied, used by
// tests and as the base when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "signal-bridge.db"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 1440
	}
	if c.Auth.BcryptCost <= 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Signals.TTLSeconds <= 0 {
		c.Signals.TTLSeconds = 300
	}
	if c.Signals.IdempotencyWindowSeconds <= 0 {
		c.Signals.IdempotencyWindowSeconds = 10
	}
	if c.Signals.SweepIntervalSeconds <= 0 {
		c.Signals.SweepIntervalSeconds = 15
	}
	if c.Signals.MaxPendingPerAccount <= 0 {
		c.Signals.MaxPendingPerAccount = 50
	}
	if c.Signals.BalanceMaxAgeSeconds <= 0 {
		c.Signals.BalanceMaxAgeSeconds = 900
	}
	if c.RateLimit.WebhookPerMinute <= 0 {
		c.RateLimit.WebhookPerMinute = 100
	}
	if c.RateLimit.PollPerMinute <= 0 {
		c.RateLimit.PollPerMinute = 60
	}
}
