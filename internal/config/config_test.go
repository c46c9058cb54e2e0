// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  url: "https://sync.example.com"
  timeout: "10s"

database:
  path: "./test.db"

sync:
  interval: "1m"
  parallelism: 8

account:
  email: "a@b.com"

kdf:
  func: "pbkdf2"
  alg: "sha256"
  cost: 110000
  key_size: 256

logging:
  level: "debug"
  format: "json"
  file: "/tmp/sealnote.log"
  max_size_mb: 5

publish:
  dir: "./site"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "https://sync.example.com" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "https://sync.example.com")
	}
	if cfg.Server.Timeout != 10*time.Second {
		t.Errorf("Server.Timeout = %v, want %v", cfg.Server.Timeout, 10*time.Second)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want %v", cfg.Sync.Interval, time.Minute)
	}
	if cfg.Sync.Parallelism != 8 {
		t.Errorf("Sync.Parallelism = %d, want 8", cfg.Sync.Parallelism)
	}
	if cfg.Account.Email != "a@b.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "a@b.com")
	}

	d := cfg.KDF.Defaults()
	if d.Alg != "sha256" || d.Cost != 110000 || d.KeySize != 256 {
		t.Errorf("KDF.Defaults() = %+v", d)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.MaxSizeMB != 5 {
		t.Errorf("Logging.MaxSizeMB = %d, want 5", cfg.Logging.MaxSizeMB)
	}
	// Unset keys keep their defaults
	if cfg.Logging.MaxBackups != 3 {
		t.Errorf("Logging.MaxBackups = %d, want default 3", cfg.Logging.MaxBackups)
	}
	if cfg.Publish.Dir != "./site" {
		t.Errorf("Publish.Dir = %q, want %q", cfg.Publish.Dir, "./site")
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
url = "http://localhost:8080"

[sync]
interval = "30s"

[database]
path = "./notes.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "http://localhost:8080" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "http://localhost:8080")
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("Sync.Interval = %v, want %v", cfg.Sync.Interval, 30*time.Second)
	}
	if cfg.Database.Path != "./notes.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./notes.db")
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want default %v", cfg.Server.Timeout, 30*time.Second)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SEALNOTE_SERVER", "https://notes.internal")
	t.Setenv("TEST_SEALNOTE_EMAIL", "me@example.com")

	path := writeConfig(t, "config.yaml", `
server:
  url: "${TEST_SEALNOTE_SERVER}"
account:
  email: "${TEST_SEALNOTE_EMAIL}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "https://notes.internal" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "https://notes.internal")
	}
	if cfg.Account.Email != "me@example.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "me@example.com")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Sync.Interval = %v, want %v", cfg.Sync.Interval, 5*time.Minute)
	}
	if cfg.Database.Path != filepath.Join("/data", "sealnote", "sealnote.db") {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.KDF.Cost != 60000 || cfg.KDF.KeySize != 512 {
		t.Errorf("KDF = %+v, want pbkdf2 defaults", cfg.KDF)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  url: "http://x"
    bad_indent: true
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sync:
  interval: "often"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "interval") {
		t.Errorf("error = %v, want mention of interval", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing server url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "server.url is required",
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.Server.URL = "ftp://x" },
			wantErr: "http or https",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: "sync.interval",
		},
		{
			name:    "unsupported hash",
			mutate:  func(c *Config) { c.KDF.Alg = "md5" },
			wantErr: "unsupported algorithm",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := parseDurations(cfg); err != nil {
				t.Fatalf("parseDurations() error = %v", err)
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("SEALNOTE_CONFIG", "/etc/sealnote.toml")
	if got := DefaultPath(); got != "/etc/sealnote.toml" {
		t.Errorf("DefaultPath() = %q, want SEALNOTE_CONFIG value", got)
	}

	t.Setenv("SEALNOTE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "sealnote", "config.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
