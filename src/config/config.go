package config

import (
	"fmt"
	"os"
	"time"

	"riskwatch/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills zero values with the defaults the provider contract assumes.
func (c *Config) applyDefaults() {
	if c.Provider.RequestsPerWindow == 0 {
		c.Provider.RequestsPerWindow = 8
	}
	if c.Provider.WindowSeconds == 0 {
		// One extra second over the per-minute window keeps the request rate
		// under the provider ceiling even with clock skew.
		c.Provider.WindowSeconds = 61
	}
	if c.Provider.ReconnectDelaySeconds == 0 {
		c.Provider.ReconnectDelaySeconds = 5
	}
	if c.Provider.KeepaliveIntervalSecond == 0 {
		c.Provider.KeepaliveIntervalSecond = 10
	}
	if c.Provider.RequestTimeoutSeconds == 0 {
		c.Provider.RequestTimeoutSeconds = 10
	}
	if c.Subscription.Quota == 0 {
		c.Subscription.Quota = 8
	}
	if c.Subscription.RotationIntervalSeconds == 0 {
		c.Subscription.RotationIntervalSeconds = 120
	}
	if c.Margin.MaintenanceRate == 0 {
		c.Margin.MaintenanceRate = 0.25
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Provider configuration
	if c.Provider.RestURL == "" {
		return fmt.Errorf("provider rest_url cannot be empty")
	}
	if c.Provider.StreamURL == "" {
		return fmt.Errorf("provider stream_url cannot be empty")
	}
	if c.Provider.APIKeyEnv == "" {
		return fmt.Errorf("provider api_key_env cannot be empty")
	}
	if c.Provider.RequestsPerWindow <= 0 {
		return fmt.Errorf("provider requests_per_window must be greater than 0")
	}
	if c.Provider.WindowSeconds <= 0 {
		return fmt.Errorf("provider window_seconds must be greater than 0")
	}

	// Validate Subscription configuration
	if c.Subscription.Quota <= 0 {
		return fmt.Errorf("subscription quota must be greater than 0")
	}
	if c.Subscription.RotationIntervalSeconds <= 0 {
		return fmt.Errorf("rotation interval must be greater than 0")
	}

	// Validate Margin configuration
	if c.Margin.MaintenanceRate <= 0 || c.Margin.MaintenanceRate >= 1 {
		return fmt.Errorf("maintenance rate must be between 0 and 1, got %v", c.Margin.MaintenanceRate)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Derived durations
// -----------------------------------------------------------------------------

// PacingDelay is the suspension between backfill batches, derived from the
// provider quota window rather than hardcoded.
func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.Provider.WindowSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// RotationInterval is the period of the subscription rotation tick.
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.Subscription.RotationIntervalSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// ReconnectDelay is the fixed backoff before redialing the upstream feed.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Provider.ReconnectDelaySeconds) * time.Second
}

// -----------------------------------------------------------------------------

// KeepaliveInterval is the idle heartbeat period on the upstream feed.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Provider.KeepaliveIntervalSecond) * time.Second
}

// -----------------------------------------------------------------------------

// APIKey resolves the provider API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Provider.APIKeyEnv)
}
