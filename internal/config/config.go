// Package config holds the mediasort application configuration, loaded from a
// YAML file with environment variable overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Organizer configuration
	Organizer OrganizerConfig `yaml:"organizer" json:"organizer"`

	// Scanner configuration
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	// Path is the sqlite database file. Defaults to <dest>/.mediasort/mediasort.db
	// when empty; resolved by the caller once the destination root is known.
	Path string `yaml:"path" json:"path" env:"MEDIASORT_DB_PATH"`
}

// OrganizerConfig holds processing engine settings.
type OrganizerConfig struct {
	Workers          int           `yaml:"workers" json:"workers" env:"MEDIASORT_WORKERS"`
	MinFreeBytes     int64         `yaml:"min_free_bytes" json:"min_free_bytes" env:"MEDIASORT_MIN_FREE_BYTES"`
	SpaceBufferPct   float64       `yaml:"space_buffer_pct" json:"space_buffer_pct"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval" env:"MEDIASORT_PROGRESS_INTERVAL"`
	CopySidecars     bool          `yaml:"copy_sidecars" json:"copy_sidecars"`
}

// ScannerConfig holds directory scanning settings.
type ScannerConfig struct {
	SkipFolders   []string `yaml:"skip_folders" json:"skip_folders"`
	SkipFiles     []string `yaml:"skip_files" json:"skip_files"`
	IncludeHidden bool     `yaml:"include_hidden" json:"include_hidden" env:"MEDIASORT_INCLUDE_HIDDEN"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"MEDIASORT_LOG_LEVEL"`
}

// Default returns a configuration populated with sane defaults.
func Default() *Config {
	workers := runtime.NumCPU()
	if workers > 16 {
		workers = 16
	}
	return &Config{
		Organizer: OrganizerConfig{
			Workers:          workers,
			MinFreeBytes:     5 << 30, // 5 GiB floor on the destination volume
			SpaceBufferPct:   10,
			ProgressInterval: time.Second,
			CopySidecars:     true,
		},
		Scanner: ScannerConfig{
			SkipFolders: []string{"node_modules", ".git", "__pycache__", "$RECYCLE.BIN", "System Volume Information"},
			SkipFiles:   []string{"*.tmp", "*.part", "~$*"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, falling back to defaults for anything
// unset, then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEDIASORT_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MEDIASORT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Organizer.Workers = n
		}
	}
	if v := os.Getenv("MEDIASORT_MIN_FREE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Organizer.MinFreeBytes = n
		}
	}
	if v := os.Getenv("MEDIASORT_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Organizer.ProgressInterval = d
		}
	}
	if v := os.Getenv("MEDIASORT_INCLUDE_HIDDEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scanner.IncludeHidden = b
		}
	}
	if v := os.Getenv("MEDIASORT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Organizer.Workers < 1 {
		return fmt.Errorf("organizer.workers must be at least 1, got %d", c.Organizer.Workers)
	}
	if c.Organizer.Workers > 64 {
		return fmt.Errorf("organizer.workers must be at most 64, got %d", c.Organizer.Workers)
	}
	if c.Organizer.ProgressInterval < 100*time.Millisecond {
		return fmt.Errorf("organizer.progress_interval must be at least 100ms, got %s", c.Organizer.ProgressInterval)
	}
	if c.Organizer.MinFreeBytes < 0 {
		return fmt.Errorf("organizer.min_free_bytes must not be negative")
	}
	return nil
}

// Fingerprint returns a stable hash of the configuration, stored on each
// session so a resume against changed settings can be detected.
func (c *Config) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DataDir returns the mediasort state directory under the destination root.
func DataDir(destRoot string) string {
	return filepath.Join(destRoot, ".mediasort")
}

// DatabasePath resolves the sqlite file location for a destination root.
func (c *Config) DatabasePath(destRoot string) string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(DataDir(destRoot), "mediasort.db")
}
