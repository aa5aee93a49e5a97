package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for RoastSight Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Rig       RigConfig       `yaml:"rig"`
	Driver    DriverConfig    `yaml:"driver"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RigConfig identifies the simulated rig instance.
type RigConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DriverConfig contains the simulated driver's behaviour parameters.
// These map one-to-one onto the driver's recognised options.
type DriverConfig struct {
	// ConnectionRejectionPercentage is the probability (0-100) that a
	// connection attempt is rejected.
	ConnectionRejectionPercentage float64 `yaml:"connection_rejection_percentage"`

	// SamplingFrequencyMS is the sampling tick interval in milliseconds.
	SamplingFrequencyMS int `yaml:"sampling_frequency_ms"`

	// ReconnectDelayMS is the fixed delay before a reconnection attempt.
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`

	// MaxReconnectionAttempts limits automatic reconnection. 0 means unlimited.
	MaxReconnectionAttempts int `yaml:"max_reconnection_attempts"`

	// CommandRetryLimited enables the retry budget for stalled commands.
	CommandRetryLimited bool `yaml:"command_retry_limited"`

	// MaxNumberOfRetries is the retry budget, consulted only when
	// CommandRetryLimited is true. The bound is inclusive: a command may be
	// retried while its retries counter is <= MaxNumberOfRetries.
	MaxNumberOfRetries int `yaml:"max_number_of_retries"`

	// RetryFrequency throttles retry evaluation to every Nth sampling tick.
	// 1 evaluates on every tick.
	RetryFrequency int `yaml:"retry_frequency"`

	// DisconnectionOnUpdatePercentage is the probability (0-100) that any
	// single sampling tick drops the link, triggering reconnection handling.
	DisconnectionOnUpdatePercentage float64 `yaml:"disconnection_on_update_percentage"`

	// ActuationStep is the fixed magnitude a controlled value moves per
	// actuation step.
	ActuationStep float64 `yaml:"actuation_step"`

	// ActuationStepIntervalMS is the real-time delay between actuation steps.
	ActuationStepIntervalMS int `yaml:"actuation_step_interval_ms"`

	// ConvergenceBand is the fraction of the target at which actuation halts
	// (e.g. 0.95 stops once the value crosses 95% of the target in the
	// direction of travel).
	ConvergenceBand float64 `yaml:"convergence_band"`

	// ConvergenceTolerance is the relative tolerance used by the convergence
	// check each tick (e.g. 0.01 means within 1% of the current value).
	ConvergenceTolerance float64 `yaml:"convergence_tolerance"`
}

// HistoryConfig contains SQLite sample-history settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// TelemetryConfig groups the optional telemetry sinks.
type TelemetryConfig struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket inspector settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROASTSIGHT_SECTION_KEY
// For example: ROASTSIGHT_HISTORY_PATH, ROASTSIGHT_API_HOST
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. The simulator runs fine
// with defaults when no config file is supplied.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Rig: RigConfig{
			ID:   "rig-001",
			Name: "RoastSight",
		},
		Driver: DriverConfig{
			ConnectionRejectionPercentage:   10,
			SamplingFrequencyMS:             1000,
			ReconnectDelayMS:                2000,
			MaxReconnectionAttempts:         0,
			CommandRetryLimited:             true,
			MaxNumberOfRetries:              3,
			RetryFrequency:                  1,
			DisconnectionOnUpdatePercentage: 0,
			ActuationStep:                   1,
			ActuationStepIntervalMS:         100,
			ConvergenceBand:                 0.95,
			ConvergenceTolerance:            0.01,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          "./data/roastsight.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 7,
		},
		Telemetry: TelemetryConfig{
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "roastsight-core",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
					MaxAttempts:  0,
				},
			},
			InfluxDB: InfluxDBConfig{
				URL:           "http://localhost:8086",
				Bucket:        "roastsight",
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROASTSIGHT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// History
	if v := os.Getenv("ROASTSIGHT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// MQTT
	if v := os.Getenv("ROASTSIGHT_MQTT_HOST"); v != "" {
		cfg.Telemetry.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROASTSIGHT_MQTT_USERNAME"); v != "" {
		cfg.Telemetry.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROASTSIGHT_MQTT_PASSWORD"); v != "" {
		cfg.Telemetry.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ROASTSIGHT_INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("ROASTSIGHT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ROASTSIGHT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Rig validation
	if c.Rig.ID == "" {
		errs = append(errs, "rig.id is required")
	}

	// Driver validation
	d := c.Driver
	if d.ConnectionRejectionPercentage < 0 || d.ConnectionRejectionPercentage > 100 {
		errs = append(errs, "driver.connection_rejection_percentage must be between 0 and 100")
	}
	if d.DisconnectionOnUpdatePercentage < 0 || d.DisconnectionOnUpdatePercentage > 100 {
		errs = append(errs, "driver.disconnection_on_update_percentage must be between 0 and 100")
	}
	if d.SamplingFrequencyMS <= 0 {
		errs = append(errs, "driver.sampling_frequency_ms must be positive")
	}
	if d.ReconnectDelayMS <= 0 {
		errs = append(errs, "driver.reconnect_delay_ms must be positive")
	}
	if d.MaxReconnectionAttempts < 0 {
		errs = append(errs, "driver.max_reconnection_attempts must be >= 0 (0 = unlimited)")
	}
	if d.MaxNumberOfRetries < 0 {
		errs = append(errs, "driver.max_number_of_retries must be >= 0")
	}
	if d.RetryFrequency < 1 {
		errs = append(errs, "driver.retry_frequency must be >= 1")
	}
	if d.ActuationStep <= 0 {
		errs = append(errs, "driver.actuation_step must be positive")
	}
	if d.ActuationStepIntervalMS <= 0 {
		errs = append(errs, "driver.actuation_step_interval_ms must be positive")
	}
	if d.ConvergenceBand <= 0 || d.ConvergenceBand > 1 {
		errs = append(errs, "driver.convergence_band must be in (0, 1]")
	}
	if d.ConvergenceTolerance < 0 {
		errs = append(errs, "driver.convergence_tolerance must be >= 0")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	// MQTT validation
	if c.Telemetry.MQTT.QoS < 0 || c.Telemetry.MQTT.QoS > 2 {
		errs = append(errs, "telemetry.mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SamplingInterval returns the sampling tick interval as a Duration.
func (c *DriverConfig) SamplingInterval() time.Duration {
	return time.Duration(c.SamplingFrequencyMS) * time.Millisecond
}

// ReconnectDelay returns the fixed reconnection delay as a Duration.
func (c *DriverConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// ActuationStepInterval returns the delay between actuation steps as a Duration.
func (c *DriverConfig) ActuationStepInterval() time.Duration {
	return time.Duration(c.ActuationStepIntervalMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
