// Package config loads and persists BridgeNLP client configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all BridgeNLP client configuration.
type Config struct {
	// Backend API base URL, e.g. http://127.0.0.1:8000/
	APIBaseURL string `yaml:"api_base_url"`

	// Identity provider settings
	Identity IdentityConfig `yaml:"identity"`

	// Request timeout for backend calls
	Timeout string `yaml:"timeout"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Snapshot cache
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Home directory holding session.json, config and the snapshot db.
	// Resolved at load time, not persisted.
	HomeDir string `yaml:"-"`
}

// IdentityConfig configures the identity provider endpoints.
type IdentityConfig struct {
	// Web API key for the identity toolkit project
	APIKey string `yaml:"api_key"`
	// Accounts endpoint base (sign-in, sign-up)
	AccountsURL string `yaml:"accounts_url"`
	// Secure token endpoint (refresh-token grant)
	TokenURL string `yaml:"token_url"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// SnapshotConfig configures the local snapshot cache.
type SnapshotConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL: "http://127.0.0.1:8000/",
		Identity: IdentityConfig{
			AccountsURL: "https://identitytoolkit.googleapis.com/v1",
			TokenURL:    "https://securetoken.googleapis.com/v1/token",
		},
		Timeout: "30s",
		Logging: LoggingConfig{
			Level: "info",
		},
		Snapshot: SnapshotConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from the given path, falling back to defaults
// when the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.HomeDir == "" {
		home, err := defaultHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.HomeDir = home
	}

	return cfg, nil
}

// LoadDefault loads configuration from ~/.bridgenlp/config.yaml.
func LoadDefault() (*Config, error) {
	home, err := defaultHomeDir()
	if err != nil {
		return nil, err
	}
	cfg, err := Load(filepath.Join(home, "config.yaml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SessionFile returns the path of the persisted session.
func (c *Config) SessionFile() string {
	return filepath.Join(c.HomeDir, "session.json")
}

// SnapshotFile returns the path of the snapshot database.
func (c *Config) SnapshotFile() string {
	return filepath.Join(c.HomeDir, "bridgenlp.db")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BRIDGENLP_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("BRIDGENLP_IDENTITY_API_KEY"); v != "" {
		c.Identity.APIKey = v
	}
	if v := os.Getenv("BRIDGENLP_HOME"); v != "" {
		c.HomeDir = v
	}
	if v := os.Getenv("BRIDGENLP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func defaultHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".bridgenlp"), nil
}
