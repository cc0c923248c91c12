// Package config loads the platform's YAML configuration document,
// following the teacher's per-concern nested-struct layout.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Session       SessionConfig       `yaml:"session"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Vault         VaultConfig         `yaml:"vault"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// DatabaseConfig configures the durable store (C4) connection.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// SessionConfig configures the hot store (C3).
type SessionConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	MaxHistory    int           `yaml:"max_history"` // N_hist, §3 default 20
	RedisTimeout  time.Duration `yaml:"redis_timeout"`
}

// AuthConfig configures ingress authentication (§6).
type AuthConfig struct {
	APIKey        string `yaml:"-"` // sourced from env, never logged or serialized
	WebhookSecret string `yaml:"-"`
	ReplayWindow  time.Duration `yaml:"replay_window"`
}

// LLMConfig configures the default LLM provider (C6).
type LLMConfig struct {
	Provider   string        `yaml:"provider"` // anthropic|openai
	APIKey     string        `yaml:"-"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`    // <= 30s per §5
	MaxRetries int           `yaml:"max_retries"`
}

// RateLimitConfig configures the §4.9/§5 sliding-window limiter.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	HealthPerMinute   int  `yaml:"health_per_minute"`
	WebhookPerMinute  int  `yaml:"webhook_per_minute"`
	AuthPerMinute     int  `yaml:"authenticated_per_minute"`
	DefaultPerMinute  int  `yaml:"default_per_minute"`
}

// DefaultRateLimitConfig matches the §4.9 path-class limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:          true,
		HealthPerMinute:  6000,
		WebhookPerMinute: 200,
		AuthPerMinute:    1000,
		DefaultPerMinute: 100,
	}
}

// VaultConfig configures the secret vault (C2).
type VaultConfig struct {
	MasterSecret string `yaml:"-"`
	Salt         string `yaml:"-"`
}

// RetentionConfig configures per-plan retention days (§4.10).
type RetentionConfig struct {
	FreeDays       int `yaml:"free_days"`
	StarterDays    int `yaml:"starter_days"`
	ProDays        int `yaml:"pro_days"`
	EnterpriseDays int `yaml:"enterprise_days"`
	MinimumDays    int `yaml:"minimum_days"`
	BatchSize      int `yaml:"batch_size"`
}

// DefaultRetentionConfig matches the §4.10 policy table.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		FreeDays:       30,
		StarterDays:    90,
		ProDays:        365,
		EnterpriseDays: 730,
		MinimumDays:    30,
		BatchSize:      1000,
	}
}

// ObservabilityConfig configures logging/metrics/tracing.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Defaults returns a Config with every non-secret field set to a
// sensible default; callers overlay file and environment values on top.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    5 * time.Second,
		},
		Session: SessionConfig{
			DefaultTTL:   30 * time.Minute,
			MaxHistory:   20,
			RedisTimeout: time.Second,
		},
		Auth: AuthConfig{ReplayWindow: 300 * time.Second},
		LLM: LLMConfig{
			Provider:   "anthropic",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		RateLimit: DefaultRateLimitConfig(),
		Retention: DefaultRetentionConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads a YAML config file, overlays it onto Defaults(), then
// overlays process environment variables for the fields the §6
// "Environment" table marks required-from-env (secrets never live in
// the YAML file).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONVOY_MASTER_KEY"); v != "" {
		cfg.Vault.MasterSecret = v
	}
	if v := os.Getenv("CONVOY_VAULT_SALT"); v != "" {
		cfg.Vault.Salt = v
	}
	if v := os.Getenv("CONVOY_API_KEY_SECRET"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("CONVOY_WEBHOOK_SECRET"); v != "" {
		cfg.Auth.WebhookSecret = v
	}
	if v := os.Getenv("CONVOY_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CONVOY_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
}

// Validate enforces §6's "Required" environment table.
func (c *Config) Validate() error {
	if c.Vault.MasterSecret == "" {
		return fmt.Errorf("config: CONVOY_MASTER_KEY is required")
	}
	if c.Vault.Salt == "" {
		return fmt.Errorf("config: CONVOY_VAULT_SALT is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("config: CONVOY_API_KEY_SECRET is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config: CONVOY_DATABASE_URL is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: CONVOY_LLM_API_KEY is required")
	}
	return nil
}
