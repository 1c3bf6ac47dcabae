// Package config loads the safeword CLI settings file.
//
// The file lives at $XDG_CONFIG_HOME/safeword/config.yaml and is optional.
// Values of the form ${VAR} are expanded from the environment before parsing.
// This is CLI configuration only; settings stored inside a vault are managed
// by the vault package.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvDatabase overrides the database path from the file.
const EnvDatabase = "SAFEWORD_DB"

// DefaultDatabaseName is created in the home directory when nothing else is set.
const DefaultDatabaseName = ".safeword.db"

// Defaults
const (
	DefaultClipboardTimeout = 10 * time.Second
	DefaultLogLevel         = "warn"
)

// Config holds CLI settings.
type Config struct {
	Database         string        `yaml:"database"`
	ClipboardTimeout time.Duration `yaml:"-"`
	Editor           string        `yaml:"editor"`
	LogLevel         string        `yaml:"log_level"`
	AuditLog         *bool         `yaml:"audit_log"` // nil means enabled

	ClipboardTimeoutRaw string `yaml:"clipboard_timeout"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		ClipboardTimeout: DefaultClipboardTimeout,
		LogLevel:         DefaultLogLevel,
	}
}

// DefaultPath returns the settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "safeword", "config.yaml"), nil
}

// Load reads the settings file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.ClipboardTimeoutRaw != "" {
		cfg.ClipboardTimeout, err = time.ParseDuration(cfg.ClipboardTimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing clipboard_timeout %q: %w", cfg.ClipboardTimeoutRaw, err)
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR, or nothing if unset.
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVar.FindStringSubmatch(match)[1])
	})
}

// Validate checks the parsed values.
func (c *Config) Validate() error {
	if c.ClipboardTimeout < 0 {
		return fmt.Errorf("clipboard_timeout must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", name)
	}
	return level, nil
}

// DatabasePath resolves the vault file: the flag value, then $SAFEWORD_DB,
// then the file setting, then ~/.safeword.db. A leading ~/ is expanded.
func (c *Config) DatabasePath(flag string) (string, error) {
	for _, candidate := range []string{flag, os.Getenv(EnvDatabase), c.Database} {
		if candidate != "" {
			return expandHome(candidate)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DefaultDatabaseName), nil
}

// AuditEnabled reports whether vault activity is logged. It defaults to true.
func (c *Config) AuditEnabled() bool { return c.AuditLog == nil || *c.AuditLog }

// AuditDir returns the audit log directory of the vault at dbPath.
func AuditDir(dbPath string) string { return dbPath + ".audit" }

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
