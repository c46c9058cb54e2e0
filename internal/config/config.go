// ABOUTME: Configuration loading and parsing for sealnote
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/sealnote/internal/keys"
)

// Config represents the complete sealnote configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Account  AccountConfig  `yaml:"account" toml:"account"`
	KDF      KDFConfig      `yaml:"kdf" toml:"kdf"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Publish  PublishConfig  `yaml:"publish" toml:"publish"`
}

// ServerConfig holds the sync server location
type ServerConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SyncConfig holds auto-sync settings
type SyncConfig struct {
	Interval    time.Duration `yaml:"-" toml:"-"`
	Parallelism int           `yaml:"parallelism" toml:"parallelism"`

	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// AccountConfig holds the default account
type AccountConfig struct {
	Email string `yaml:"email" toml:"email"`
}

// KDFConfig holds the key derivation parameters used when registering
type KDFConfig struct {
	Func    string `yaml:"func" toml:"func"`
	Alg     string `yaml:"alg" toml:"alg"`
	Cost    int    `yaml:"cost" toml:"cost"`
	KeySize int    `yaml:"key_size" toml:"key_size"`
}

// Defaults converts the section to registration defaults.
func (k KDFConfig) Defaults() keys.Defaults {
	return keys.Defaults{Func: k.Func, Alg: k.Alg, Cost: k.Cost, KeySize: k.KeySize}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	// File, when set, receives log output with size-based rotation.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// PublishConfig holds the export location for public notes
type PublishConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	d := keys.DefaultParams()
	return &Config{
		Server: ServerConfig{
			URL:        "http://localhost:3000",
			TimeoutRaw: "30s",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir(), "sealnote.db"),
		},
		Sync: SyncConfig{
			IntervalRaw: "5m",
			Parallelism: 4,
		},
		KDF: KDFConfig{
			Func:    d.Func,
			Alg:     d.Alg,
			Cost:    d.Cost,
			KeySize: d.KeySize,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Publish: PublishConfig{
			Dir: filepath.Join(dataDir(), "public"),
		},
	}
}

// DefaultPath returns the config file location: $SEALNOTE_CONFIG, else
// $XDG_CONFIG_HOME/sealnote/config.yaml, else ~/.config/sealnote/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("SEALNOTE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sealnote", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "sealnote", "config.yaml")
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sealnote")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sealnote"
	}
	return filepath.Join(home, ".local", "share", "sealnote")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML. Keys missing from
// the file keep their default values.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return finish(Default())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.Parallelism < 0 {
		return fmt.Errorf("sync.parallelism must not be negative")
	}

	probe := keys.AuthParams{Func: c.KDF.Func, Alg: c.KDF.Alg, Cost: c.KDF.Cost, KeySize: c.KDF.KeySize, Salt: "probe"}
	if err := probe.Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.TimeoutRaw != "" {
		cfg.Server.Timeout, err = time.ParseDuration(cfg.Server.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Server.TimeoutRaw, err)
		}
	}

	if cfg.Sync.IntervalRaw != "" {
		cfg.Sync.Interval, err = time.ParseDuration(cfg.Sync.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing interval %q: %w", cfg.Sync.IntervalRaw, err)
		}
	}

	return nil
}
