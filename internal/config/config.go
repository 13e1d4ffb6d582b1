// Package config handles gemma-chatd configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ryandam9/gemma-chatd/internal/chat"
	"github.com/ryandam9/gemma-chatd/internal/session"
)

// Config holds the complete server configuration. Precedence:
// defaults, then the optional YAML file, then environment variables.
type Config struct {
	// HTTP listen address.
	ListenAddr string

	// Completion backend.
	BackendURL     string
	Model          string
	MaxTokens      int
	Temperature    float64
	BackendAPIKey  string
	BackendTimeout time.Duration

	// SystemPreamble is prepended to every prompt.
	SystemPreamble string

	// Session lifecycle.
	SessionTimeout time.Duration
	ReapInterval   time.Duration
}

// fileConfig is the YAML shape of the config file. Durations are
// strings in Go syntax ("30m", "2h").
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	BackendURL     string   `yaml:"backend_url"`
	Model          string   `yaml:"model"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	BackendAPIKey  string   `yaml:"backend_api_key"`
	BackendTimeout string   `yaml:"backend_timeout"`
	SystemPreamble string   `yaml:"system_preamble"`
	SessionTimeout string   `yaml:"session_timeout"`
	ReapInterval   string   `yaml:"reap_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8000",
		BackendURL:     "http://localhost:8080",
		Model:          "gemma-3-270m-it",
		MaxTokens:      2048,
		Temperature:    0.7,
		BackendTimeout: 2 * time.Minute,
		SystemPreamble: chat.DefaultPreamble,
		SessionTimeout: session.DefaultSessionTimeout,
		ReapInterval:   session.DefaultReapInterval,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		fc.apply(cfg)
	}

	// Environment overrides
	if v := os.Getenv("CHATD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CHATD_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("CHATD_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CHATD_MAX_TOKENS"); v != "" {
		cfg.MaxTokens = parseIntOrDefault(v, cfg.MaxTokens)
	}
	if v := os.Getenv("CHATD_TEMPERATURE"); v != "" {
		cfg.Temperature = parseFloatOrDefault(v, cfg.Temperature)
	}
	if v := os.Getenv("CHATD_BACKEND_API_KEY"); v != "" {
		cfg.BackendAPIKey = v
	}
	if v := os.Getenv("CHATD_BACKEND_TIMEOUT"); v != "" {
		cfg.BackendTimeout = parseDurationOrDefault(v, cfg.BackendTimeout)
	}
	if v := os.Getenv("CHATD_SYSTEM_PREAMBLE"); v != "" {
		cfg.SystemPreamble = v
	}
	if v := os.Getenv("CHATD_SESSION_TIMEOUT"); v != "" {
		cfg.SessionTimeout = parseDurationOrDefault(v, cfg.SessionTimeout)
	}
	if v := os.Getenv("CHATD_REAP_INTERVAL"); v != "" {
		cfg.ReapInterval = parseDurationOrDefault(v, cfg.ReapInterval)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply copies the file's set fields onto cfg.
func (fc *fileConfig) apply(cfg *Config) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.BackendURL != "" {
		cfg.BackendURL = fc.BackendURL
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.MaxTokens > 0 {
		cfg.MaxTokens = fc.MaxTokens
	}
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.BackendAPIKey != "" {
		cfg.BackendAPIKey = fc.BackendAPIKey
	}
	if fc.BackendTimeout != "" {
		cfg.BackendTimeout = parseDurationOrDefault(fc.BackendTimeout, cfg.BackendTimeout)
	}
	if fc.SystemPreamble != "" {
		cfg.SystemPreamble = fc.SystemPreamble
	}
	if fc.SessionTimeout != "" {
		cfg.SessionTimeout = parseDurationOrDefault(fc.SessionTimeout, cfg.SessionTimeout)
	}
	if fc.ReapInterval != "" {
		cfg.ReapInterval = parseDurationOrDefault(fc.ReapInterval, cfg.ReapInterval)
	}
}

// Validate checks invariants the rest of the system assumes.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", c.SessionTimeout)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("reap_interval must be positive, got %v", c.ReapInterval)
	}
	return nil
}

// parseIntOrDefault parses an integer, returning the default on error.
func parseIntOrDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseFloatOrDefault parses a float, returning the default on error.
func parseFloatOrDefault(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// parseDurationOrDefault parses a duration like "30m" or "2h",
// returning the default on error.
func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
