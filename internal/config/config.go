// Package config holds the server configuration, loaded from
// an optional YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variable keys; each overrides its file counterpart.
const (
	EnvListenAddr  = "CYPHERGRES_LISTEN_ADDR"
	EnvDatabaseURL = "CYPHERGRES_DATABASE_URL"
	EnvGroupID     = "CYPHERGRES_GROUP_ID"
	EnvLogLevel    = "CYPHERGRES_LOG_LEVEL"
)

// Config is the full configuration surface.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	GroupID     string `yaml:"group_id"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
	}
}

// Load reads the YAML file at path (skipped when empty) and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(EnvGroupID); v != "" {
		cfg.GroupID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}
