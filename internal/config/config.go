// Package config loads ptymcpd's process-level configuration
// (max_sessions, log_dir, default PTY geometry) from
// ~/.ptymcp/config.yaml, mirroring h2/internal/config.Load/LoadFrom: a
// missing file yields zero-value defaults rather than an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration for the ptymcpd binary
// (spec.md §6 "Configuration knobs").
type Config struct {
	MaxSessions int    `yaml:"max_sessions"`
	LogDir      string `yaml:"log_dir"`
	DefaultRows int    `yaml:"default_rows"`
	DefaultCols int    `yaml:"default_cols"`
}

// Defaults per spec.md §6.
const (
	DefaultMaxSessions = 10
	DefaultRows        = 24
	DefaultCols        = 80
)

// WithDefaults returns a copy of c with zero-valued fields replaced by
// spec.md §6's documented defaults.
func (c Config) WithDefaults() Config {
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.DefaultRows == 0 {
		c.DefaultRows = DefaultRows
	}
	if c.DefaultCols == 0 {
		c.DefaultCols = DefaultCols
	}
	return c
}

// Validate checks that an explicitly configured LogDir exists: spec.md
// §6 "Non-existent log_dir is a fatal startup error". An empty LogDir
// (logging disabled) is always valid.
func (c Config) Validate() error {
	if c.LogDir == "" {
		return nil
	}
	info, err := os.Stat(c.LogDir)
	if err != nil {
		return fmt.Errorf("log_dir %q: %w", c.LogDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("log_dir %q is not a directory", c.LogDir)
	}
	return nil
}

// Dir returns ptymcpd's configuration directory (~/.ptymcp).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ptymcp")
	}
	return filepath.Join(home, ".ptymcp")
}

// Load reads the config from ~/.ptymcp/config.yaml. If the file does not
// exist, it returns a zero-value Config with no error (defaults are
// applied by the caller via WithDefaults).
func Load() (Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads the config from the given path. If the file does not
// exist, it returns a zero-value Config with no error.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
