package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envVarPrefix is the prefix for environment overrides, e.g.
// DUPESWEEP_ROOTS=/srv/media,/srv/backup
const envVarPrefix = "dupesweep"

type PrometheusCfg struct {
	Port int `yaml:"port" envconfig:"DUPESWEEP_PROMETHEUS_PORT"` // 0 disables the metrics listener
}

type LoggingCfg struct {
	RotationDays int `yaml:"rotation_days" envconfig:"DUPESWEEP_LOG_ROTATION_DAYS"` // Days to keep logs before rotation
}

type HashingCfg struct {
	Concurrency     int `yaml:"concurrency" envconfig:"DUPESWEEP_HASHING_CONCURRENCY"`                 // Parallel fingerprint workers (1 = sequential)
	MaxReadMBPerSec int `yaml:"max_read_mb_per_sec" envconfig:"DUPESWEEP_HASHING_MAX_READ_MB_PER_SEC"` // Read throttle, 0 = unlimited
}

type Config struct {
	Roots           []string      `yaml:"roots" envconfig:"DUPESWEEP_ROOTS"`
	ExcludePatterns []string      `yaml:"exclude_patterns" envconfig:"DUPESWEEP_EXCLUDE_PATTERNS"` // Base-name globs, match skips files and prunes dirs
	MinSizeBytes    int64         `yaml:"min_size_bytes" envconfig:"DUPESWEEP_MIN_SIZE_BYTES"`     // Files below this size are ignored
	AutoConfirm     bool          `yaml:"auto_confirm" envconfig:"DUPESWEEP_AUTO_CONFIRM"`         // Required for unattended deletion
	IntervalMinutes int           `yaml:"interval_minutes" envconfig:"DUPESWEEP_INTERVAL_MINUTES"`
	Prometheus      PrometheusCfg `yaml:"prometheus"`
	Logging         LoggingCfg    `yaml:"logging"`
	Hashing         HashingCfg    `yaml:"hashing"`
	NFSTimeout      int           `yaml:"nfs_timeout_seconds" envconfig:"DUPESWEEP_NFS_TIMEOUT_SECONDS"` // 0 disables stale-mount probes
	DatabasePath    string        `yaml:"database_path" envconfig:"DUPESWEEP_DATABASE_PATH"`             // Empty disables deletion history
	ProtectedPaths  []string      `yaml:"protected_paths" envconfig:"DUPESWEEP_PROTECTED_PATHS"`         // Extra paths the executor must never touch
}

var (
	errNoRoots      = errors.New("configuration must specify at least one root")
	errInvalidPath  = errors.New("path must be absolute")
	errNegativeSize = errors.New("min_size_bytes cannot be negative")
)

// Load reads a YAML configuration file, applies environment overrides,
// and validates the result. Roots are required.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Roots may be empty; interactive runs supply one afterwards.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.MinSizeBytes < 0 {
		return nil, errNegativeSize
	}
	cfg.applyDefaults()

	if len(cfg.Roots) > 0 {
		cleaned, err := cleanRoots(cfg.Roots)
		if err != nil {
			return nil, err
		}
		cfg.Roots = cleaned
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if err := envconfig.Process(envVarPrefix, c); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}
	return nil
}

func (c *Config) validateAndDefault() error {
	if len(c.Roots) == 0 {
		return errNoRoots
	}

	if c.MinSizeBytes < 0 {
		return errNegativeSize
	}

	c.applyDefaults()

	cleaned, err := cleanRoots(c.Roots)
	if err != nil {
		return err
	}
	c.Roots = cleaned

	return nil
}

func (c *Config) applyDefaults() {
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 15
	}

	// Set defaults for logging
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	// Set defaults for hashing
	if c.Hashing.Concurrency <= 0 {
		c.Hashing.Concurrency = 1 // Default: sequential fingerprinting
	}
	if c.Hashing.MaxReadMBPerSec < 0 {
		c.Hashing.MaxReadMBPerSec = 0 // 0 = unlimited
	}

	// NFS probes and the metrics listener are opt-in
	if c.NFSTimeout < 0 {
		c.NFSTimeout = 0
	}
	if c.Prometheus.Port < 0 {
		c.Prometheus.Port = 0
	}
}

func cleanRoots(roots []string) ([]string, error) {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		cr, err := cleanAbsolute(r)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cr)
	}
	return cleaned, nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}
