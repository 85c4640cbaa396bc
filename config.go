package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Operators  []OperatorConfig `yaml:"operators"`
	Logbook    LogbookConfig    `yaml:"logbook"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	EnableCORS bool   `yaml:"enable_cors"`
}

// EngineConfig contains slot timing settings
type EngineConfig struct {
	Mode string `yaml:"mode"` // FT8 or FT4
	// WorkedQueryTimeoutMs bounds the wait for a logbook worked-before
	// reply during arbitration (default: 1000)
	WorkedQueryTimeoutMs int `yaml:"worked_query_timeout_ms"`
}

// LogbookConfig contains QSO persistence settings
type LogbookConfig struct {
	Path string `yaml:"path"` // SQLite database path (":memory:" for ephemeral)
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// PrometheusConfig contains metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // metrics endpoint path (default: /metrics)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = "FT8"
	}
	if c.Engine.WorkedQueryTimeoutMs <= 0 {
		c.Engine.WorkedQueryTimeoutMs = 1000
	}
	if c.Logbook.Path == "" {
		c.Logbook.Path = "data/logbook.db"
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ft8engine"
	}
	for i := range c.Operators {
		c.Operators[i].applyDefaults(c.Engine.Mode)
	}
}

// applyDefaults fills unset operator fields with usable values.
func (op *OperatorConfig) applyDefaults(mode string) {
	if op.Mode == "" {
		op.Mode = mode
	}
	if op.TransmitCycles == nil {
		op.TransmitCycles = []int64{0}
	}
	if op.MaxQSOTimeoutCycles <= 0 {
		op.MaxQSOTimeoutCycles = 3
	}
	if op.MaxCallAttempts <= 0 {
		op.MaxCallAttempts = 5
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := GetModeDescriptor(c.Engine.Mode); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	seen := make(map[string]bool)
	for i := range c.Operators {
		op := &c.Operators[i]
		if op.ID == "" {
			return fmt.Errorf("operator %d: id must not be empty", i)
		}
		if seen[op.ID] {
			return fmt.Errorf("operator %d: duplicate id %q", i, op.ID)
		}
		seen[op.ID] = true
		if op.MyCallsign == "" {
			return fmt.Errorf("operator %q: my_callsign must not be empty", op.ID)
		}
		if op.MyGrid != "" && !IsValidMaidenheadLocator(op.MyGrid) {
			return fmt.Errorf("operator %q: invalid grid %q", op.ID, op.MyGrid)
		}
		if _, err := GetModeDescriptor(op.Mode); err != nil {
			return fmt.Errorf("operator %q: %w", op.ID, err)
		}
		for _, cyc := range op.TransmitCycles {
			if cyc < 0 {
				return fmt.Errorf("operator %q: transmit cycle must not be negative", op.ID)
			}
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker must be set when enabled")
	}

	return nil
}
