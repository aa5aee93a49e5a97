package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Driver.ConvergenceBand != 0.95 {
		t.Errorf("expected convergence band 0.95, got %v", cfg.Driver.ConvergenceBand)
	}
	if cfg.Driver.RetryFrequency != 1 {
		t.Errorf("expected retry frequency 1, got %d", cfg.Driver.RetryFrequency)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
rig:
  id: rig-test
driver:
  sampling_frequency_ms: 250
  max_number_of_retries: 5
api:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Rig.ID != "rig-test" {
		t.Errorf("expected rig id rig-test, got %q", cfg.Rig.ID)
	}
	if cfg.Driver.SamplingFrequencyMS != 250 {
		t.Errorf("expected sampling 250ms, got %d", cfg.Driver.SamplingFrequencyMS)
	}
	if cfg.Driver.MaxNumberOfRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.Driver.MaxNumberOfRetries)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.API.Port)
	}
	// Unspecified values keep defaults.
	if cfg.Driver.ReconnectDelayMS != 2000 {
		t.Errorf("expected default reconnect delay 2000, got %d", cfg.Driver.ReconnectDelayMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "driver: [not a map")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "rig:\n  id: rig-env\n")

	t.Setenv("ROASTSIGHT_API_PORT", "7070")
	t.Setenv("ROASTSIGHT_MQTT_HOST", "broker.example.com")
	t.Setenv("ROASTSIGHT_INFLUXDB_TOKEN", "secret-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("expected env-overridden port 7070, got %d", cfg.API.Port)
	}
	if cfg.Telemetry.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("expected env-overridden mqtt host, got %q", cfg.Telemetry.MQTT.Broker.Host)
	}
	if cfg.Telemetry.InfluxDB.Token != "secret-token" {
		t.Errorf("expected env-overridden influx token, got %q", cfg.Telemetry.InfluxDB.Token)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing rig id",
			mutate: func(c *Config) { c.Rig.ID = "" },
			want:   "rig.id is required",
		},
		{
			name:   "rejection percentage out of range",
			mutate: func(c *Config) { c.Driver.ConnectionRejectionPercentage = 150 },
			want:   "connection_rejection_percentage",
		},
		{
			name:   "non-positive sampling frequency",
			mutate: func(c *Config) { c.Driver.SamplingFrequencyMS = 0 },
			want:   "sampling_frequency_ms",
		},
		{
			name:   "zero retry frequency",
			mutate: func(c *Config) { c.Driver.RetryFrequency = 0 },
			want:   "retry_frequency",
		},
		{
			name:   "convergence band above one",
			mutate: func(c *Config) { c.Driver.ConvergenceBand = 1.5 },
			want:   "convergence_band",
		},
		{
			name:   "negative actuation step",
			mutate: func(c *Config) { c.Driver.ActuationStep = -1 },
			want:   "actuation_step",
		},
		{
			name:   "history enabled without path",
			mutate: func(c *Config) { c.History.Enabled = true; c.History.Path = "" },
			want:   "history.path",
		},
		{
			name:   "invalid qos",
			mutate: func(c *Config) { c.Telemetry.MQTT.QoS = 3 },
			want:   "qos",
		},
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.API.Port = 0 },
			want:   "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.Driver.SamplingInterval().Milliseconds(); got != 1000 {
		t.Errorf("expected 1000ms sampling interval, got %d", got)
	}
	if got := cfg.Driver.ReconnectDelay().Milliseconds(); got != 2000 {
		t.Errorf("expected 2000ms reconnect delay, got %d", got)
	}
	if got := cfg.Driver.ActuationStepInterval().Milliseconds(); got != 100 {
		t.Errorf("expected 100ms step interval, got %d", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("expected 30s read timeout, got %v", got)
	}
}
