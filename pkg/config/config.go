package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Durations are kept as strings in
// time.ParseDuration syntax so they round-trip through YAML.
type Config struct {
	LogLevel     string `yaml:"log_level" default:"info"`
	QueueLabel   string `yaml:"queue_label" default:"dispatchq.demo"`
	Producers    int    `yaml:"producers" default:"8"`
	ItemsPerProd int    `yaml:"items_per_producer" default:"100"`
	TickInterval string `yaml:"tick_interval" default:"50ms"`
	RunFor       string `yaml:"run_for" default:"2s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file, applying defaults to any field
// the file leaves unset.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Producers <= 0 {
		return nil, fmt.Errorf("producers must be positive, got %d", cfg.Producers)
	}
	if cfg.ItemsPerProd <= 0 {
		return nil, fmt.Errorf("items_per_producer must be positive, got %d", cfg.ItemsPerProd)
	}
	if _, err := cfg.Tick(); err != nil {
		return nil, err
	}
	if _, err := cfg.Run(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Tick returns the parsed tick interval
func (c *Config) Tick() (time.Duration, error) {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid tick_interval %q: %w", c.TickInterval, err)
	}
	return d, nil
}

// Run returns the parsed workload duration
func (c *Config) Run() (time.Duration, error) {
	d, err := time.ParseDuration(c.RunFor)
	if err != nil {
		return 0, fmt.Errorf("invalid run_for %q: %w", c.RunFor, err)
	}
	return d, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
