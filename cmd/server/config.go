package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server reads at startup. Values come from an
// optional YAML file first, then environment variables override field by
// field.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// TextSeed seeds the race text picker; zero means time-based.
	TextSeed int64 `yaml:"textSeed"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`

	Database struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"database"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Port = "8080"
	cfg.LogLevel = "info"
	cfg.NATS.URL = "nats://localhost:4222"
	return cfg
}

// loadConfig builds the effective configuration. CONFIG_FILE names the YAML
// file; a missing file is only an error when it was explicitly requested.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.TextSeed = getEnvAsInt64("TEXT_SEED", cfg.TextSeed)
	cfg.NATS.Enabled = getEnvAsBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Database.Enabled = getEnvAsBool("DATABASE_ENABLED", cfg.Database.Enabled)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
