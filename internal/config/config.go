// Package config loads notetree settings from YAML files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FileName is the per-project config file looked up from the working
// directory upwards.
const FileName = ".notetree.yaml"

// Config is the resolved notetree configuration.
type Config struct {
	Driver        string `yaml:"driver"`
	Database      string `yaml:"database"` // SQLite path or Postgres DSN
	Organization  string `yaml:"organization"`
	LogLevel      string `yaml:"log_level"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Driver:        DriverSQLite,
		Database:      "notetree.db",
		Organization:  "default",
		LogLevel:      "warn",
		BusyTimeoutMS: 5000,
	}
}

// Discover finds the config file using priority: flag > env > walk-up > XDG.
// It returns "" without error when no file exists anywhere.
func Discover(flagPath string) (string, error) {
	// 1. CLI flag
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config not found at --config path: %s", flagPath)
		}
		return flagPath, nil
	}

	// 2. Environment variable
	if envPath := os.Getenv("NOTETREE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config not found at NOTETREE_CONFIG path: %s", envPath)
		}
		return envPath, nil
	}

	// 3. Walk up from CWD
	if dir, err := os.Getwd(); err == nil {
		for {
			candidate := filepath.Join(dir, FileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 4. XDG fallback
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	if base != "" {
		candidate := filepath.Join(base, "notetree", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", nil
}

// Load discovers and reads the config file, then applies environment
// overrides and validates the result.
func Load(flagPath string) (*Config, error) {
	cfg := Default()

	path, err := Discover(flagPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Source = path
		cfg.resolveRelative(filepath.Dir(path))
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg, keeping the current value of every field the
// document leaves out. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return nil
}

// resolveRelative makes a relative SQLite path relative to the directory of
// the config file that named it.
func (c *Config) resolveRelative(dir string) {
	if c.Driver != DriverSQLite || c.Database == "" || c.Database == ":memory:" || filepath.IsAbs(c.Database) {
		return
	}
	c.Database = filepath.Join(dir, c.Database)
}

// ApplyEnv overrides fields from NOTETREE_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("NOTETREE_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("NOTETREE_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("NOTETREE_ORG"); v != "" {
		c.Organization = v
	}
	if v := os.Getenv("NOTETREE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.Organization == "" {
		return errors.New("organization is required")
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy_timeout_ms must be >= 0, got %d", c.BusyTimeoutMS)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// BusyTimeout returns BusyTimeoutMS as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}
