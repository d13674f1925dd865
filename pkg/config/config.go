/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the framewire server configuration
type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Port     int      `yaml:"port"`
	Bind     string   `yaml:"bind"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
	Codec    Codec    `yaml:"codec"`
	Store    Store    `yaml:"store"`
	Stream   Stream   `yaml:"stream"`
}

// Security contains security-related configuration
type Security struct {
	// APIKey guards /api/v1. Empty disables authentication.
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Codec configures the frame codecs of every session
type Codec struct {
	// Retention is the number of codec states kept per session. 0 keeps all.
	Retention int `yaml:"retention"`
	// Fallback names the codec for non-frame messages: json or msgpack.
	Fallback string `yaml:"fallback"`
}

// Store configures the series log
type Store struct {
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// Stream configures streamer sessions
type Stream struct {
	BufferSize   int           `yaml:"buffer_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    9090,
		Bind:    "127.0.0.1",
		Logging: Logging{
			Level: "info",
		},
		Codec: Codec{
			Retention: 0,
			Fallback:  "json",
		},
		Store: Store{
			FsyncInterval: 100 * time.Millisecond,
			BufferSize:    64 * 1024,
		},
		Stream: Stream{
			BufferSize:   100,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("port %d out of range", c.Port)
	}
	if c.Codec.Retention < 0 {
		return errors.Newf("codec.retention must not be negative, got %d", c.Codec.Retention)
	}
	switch c.Codec.Fallback {
	case "", "json", "msgpack":
	default:
		return errors.Newf("unknown codec.fallback %q", c.Codec.Fallback)
	}
	if c.Store.FsyncInterval < 0 {
		return errors.New("store.fsync_interval must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from the specified path. Fields missing from the
// file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates and saves a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./framewire.yaml"
	}

	// For Linux/macOS, use ~/.config/framewire/config.yaml
	return filepath.Join(homeDir, ".config", "framewire", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
