package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/filekv/pkg/codec"
)

// Config represents the filekv configuration
type Config struct {
	Store    Store    `yaml:"store" mapstructure:"store"`
	Server   Server   `yaml:"server" mapstructure:"server"`
	Security Security `yaml:"security" mapstructure:"security"`
	Logging  Logging  `yaml:"logging" mapstructure:"logging"`
}

// Store selects the store file and how it is opened
type Store struct {
	Path          string `yaml:"path" mapstructure:"path"`
	Format        string `yaml:"format" mapstructure:"format"`
	LockPath      string `yaml:"lock_path,omitempty" mapstructure:"lock_path"`
	ReadOnly      bool   `yaml:"read_only" mapstructure:"read_only"`
	MaxRecordSize int    `yaml:"max_record_size" mapstructure:"max_record_size"`
}

// Server contains HTTP server configuration
type Server struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Bind string `yaml:"bind" mapstructure:"bind"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: Store{
			Path:          "./data/store.fkv",
			Format:        "json",
			MaxRecordSize: 64 << 20,
		},
		Server: Server{
			Port: 8080,
			Bind: "127.0.0.1",
		},
		Security: Security{
			APIKey: "",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration can be used to open a store
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if _, err := codec.ParseFormat(c.Store.Format); err != nil {
		errs = append(errs, fmt.Errorf("store.format: %w", err))
	}
	if c.Store.MaxRecordSize < 0 {
		errs = append(errs, fmt.Errorf("store.max_record_size must not be negative, got %d", c.Store.MaxRecordSize))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from the specified path. Fields missing
// from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key
func BootstrapConfig(configPath string, storePath string) (*Config, error) {
	config := DefaultConfig()
	if storePath != "" {
		config.Store.Path = storePath
	}

	apiKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./filekv.yaml"
	}
	return filepath.Join(homeDir, ".config", "filekv", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
