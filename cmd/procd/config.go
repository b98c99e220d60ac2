package main

import (
	"os"
	"time"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Config is the procd daemon configuration.
type Config struct {
	// DBPath is the sqlite database file; empty runs on the in-memory store.
	DBPath string `yaml:"db_path"`

	LogLevel string `yaml:"log_level"`

	WorkerID      string `yaml:"worker_id"`
	Workers       int    `yaml:"workers"`
	BatchSize     int    `yaml:"batch_size"`
	PollInterval  string `yaml:"poll_interval"`
	LeaseDuration string `yaml:"lease_duration"`

	// Definitions lists process definition files deployed at startup.
	Definitions []string `yaml:"definitions"`
}

// DefaultConfig returns the configuration procd starts from before the file
// and flags overlay it.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		Workers:       4,
		BatchSize:     10,
		PollInterval:  "500ms",
		LeaseDuration: "5m",
	}
}

// LoadConfig reads a yaml config file over the defaults. A missing path
// returns the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "read config file").
			WithMetadata(map[string]any{"path": path})
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "parse config file").
			WithMetadata(map[string]any{"path": path})
	}
	return cfg, nil
}

func (c Config) pollInterval() (time.Duration, error) {
	return parseConfigDuration("poll_interval", c.PollInterval)
}

func (c Config) leaseDuration() (time.Duration, error) {
	return parseConfigDuration("lease_duration", c.LeaseDuration)
}

func parseConfigDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryValidation, "invalid duration in config").
			WithMetadata(map[string]any{"field": field, "value": value})
	}
	return d, nil
}
