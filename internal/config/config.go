// Package config loads the engine configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	QStash   QStashConfig   `yaml:"qstash"`
	Engine   EngineConfig   `yaml:"engine"`
	API      APIConfig      `yaml:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ShutdownTimeoutSeconds bounds how long a drain waits for in-flight
	// invocations before the server exits anyway.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory repositories.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// QStashConfig holds scheduler credentials and webhook addressing.
type QStashConfig struct {
	Token             string `yaml:"token"`
	CurrentSigningKey string `yaml:"current_signing_key"`
	NextSigningKey    string `yaml:"next_signing_key"`

	// Domain is the public base URL the scheduler delivers to.
	Domain string `yaml:"domain"`

	// WebhookPath is where the workflow webhook is mounted.
	WebhookPath string `yaml:"webhook_path"`

	// ClockSkewSeconds is the leeway for signature exp/nbf validation.
	ClockSkewSeconds int `yaml:"clock_skew_seconds"`
}

// EngineConfig tunes execution, retries, and resilience.
type EngineConfig struct {
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds"`
	MaxPayloadBytes         int `yaml:"max_payload_bytes"`

	RetryMaxAttempts      int `yaml:"retry_max_attempts"`
	RetryBaseDelaySeconds int `yaml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int `yaml:"retry_max_delay_seconds"`

	BreakerEnabled           bool `yaml:"breaker_enabled"`
	BreakerFailureThreshold  int  `yaml:"breaker_failure_threshold"`
	BreakerRecoverySeconds   int  `yaml:"breaker_recovery_seconds"`
	BreakerHalfOpenSuccesses int  `yaml:"breaker_half_open_successes"`

	// RetentionDays is how long terminal runs and dead letters are kept.
	// Zero disables the janitor.
	RetentionDays   int    `yaml:"retention_days"`
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// APIConfig gates the management API.
type APIConfig struct {
	AuthRequired  bool   `yaml:"auth_required"`
	Key           string `yaml:"key"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ShutdownTimeoutSeconds: 30,
		},
		QStash: QStashConfig{
			WebhookPath:      "/hookflow/",
			ClockSkewSeconds: 60,
		},
		Engine: EngineConfig{
			ExecutionTimeoutSeconds:  30,
			MaxPayloadBytes:          1 << 20,
			RetryMaxAttempts:         3,
			RetryBaseDelaySeconds:    5,
			RetryMaxDelaySeconds:     300,
			BreakerEnabled:           true,
			BreakerFailureThreshold:  5,
			BreakerRecoverySeconds:   30,
			BreakerHalfOpenSuccesses: 3,
			RetentionDays:            30,
			JanitorSchedule:          "0 3 * * *",
		},
		API: APIConfig{
			AuthRequired:  true,
			RatePerMinute: 100,
		},
	}
}

// Load reads a YAML configuration file at path, then applies environment
// overrides. A .env file in the working directory is read first if present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns defaults with environment
// overrides applied. Any other error is returned.
func LoadDefault() (*Config, error) {
	godotenv.Load()

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of file values. Secrets
// normally arrive this way rather than through the YAML file.
func (c *Config) applyEnv() {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.QStash.Token, "QSTASH_TOKEN")
	setString(&c.QStash.CurrentSigningKey, "QSTASH_CURRENT_SIGNING_KEY")
	setString(&c.QStash.NextSigningKey, "QSTASH_NEXT_SIGNING_KEY")
	setString(&c.QStash.Domain, "HOOKFLOW_DOMAIN")
	setString(&c.QStash.WebhookPath, "HOOKFLOW_WEBHOOK_PATH")
	setString(&c.API.Key, "HOOKFLOW_API_KEY")
	setInt(&c.Server.Port, "HOOKFLOW_PORT")
	setInt(&c.QStash.ClockSkewSeconds, "HOOKFLOW_CLOCK_SKEW_SECONDS")
	setInt(&c.Engine.ExecutionTimeoutSeconds, "HOOKFLOW_EXECUTION_TIMEOUT_SECONDS")
	if v := os.Getenv("HOOKFLOW_API_AUTH_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.API.AuthRequired = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ShutdownTimeout returns the drain timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ExecutionTimeout returns the per-invocation timeout as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Engine.ExecutionTimeoutSeconds) * time.Second
}

// ClockSkew returns the signature leeway as a duration.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.QStash.ClockSkewSeconds) * time.Second
}

// Retention returns how long terminal records are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Engine.RetentionDays) * 24 * time.Hour
}
