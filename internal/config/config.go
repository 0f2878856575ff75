package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "tocsin.yml"

// Facility kinds
const (
	FacilityLocal = "local"
	FacilityRedis = "redis"
	FacilityFS    = "fs"
	FacilityDBus  = "dbus"
)

// MaxPrefixLength bounds the prefix. Identifiers are not limited; the fs
// facility switches to digest file names for long fully-qualified names.
const MaxPrefixLength = 128

// PrefixPattern is the regex for valid prefixes: alphanumeric segments joined
// by dots, hyphens or underscores, optionally ending with the separator.
var PrefixPattern = regexp.MustCompile(`^[A-Za-z0-9]([-_.A-Za-z0-9]*)?$`)

// TocsinConfig represents the top-level tocsin.yml configuration
type TocsinConfig struct {
	Version  string          `yaml:"version"`
	Prefix   string          `yaml:"prefix,omitempty"`
	Facility string          `yaml:"facility,omitempty"` // local, redis, fs or dbus
	Redis    *RedisConfig    `yaml:"redis,omitempty"`
	FS       *FSConfig       `yaml:"fs,omitempty"`
	PostRate *PostRateConfig `yaml:"post_rate,omitempty"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// RedisConfig configures the redis facility
type RedisConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // Per-command timeout (default 5s)
}

// FSConfig configures the fs facility
type FSConfig struct {
	Dir string `yaml:"dir"`
}

// PostRateConfig limits how often posts reach the facility
type PostRateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst,omitempty"` // Default: 1
}

// LoggingConfig configures the zerolog logger
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // trace, debug, info, warn, error (default: info)
	Format string `yaml:"format,omitempty"` // console or json (default: console)
}

// DefaultFSDir is the shared notification directory used by the fs facility.
func DefaultFSDir() string {
	return filepath.Join(os.TempDir(), "tocsin")
}

// Default returns the configuration used when no file is present.
// The fs facility is the default because it needs no server and still
// reaches every process on the host.
func Default() *TocsinConfig {
	return &TocsinConfig{
		Version:  "1.0",
		Prefix:   broadcast.DefaultPrefix,
		Facility: FacilityFS,
		FS:       &FSConfig{Dir: DefaultFSDir()},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ValidatePrefix checks that a prefix is usable on every facility.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}

	if len(prefix) > MaxPrefixLength {
		return fmt.Errorf("prefix too long: %d characters (max: %d)", len(prefix), MaxPrefixLength)
	}

	if !PrefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid prefix '%s': must start with a letter or digit and contain only letters, digits, '.', '-' or '_'", prefix)
	}

	return nil
}

// Validate performs strict validation on the configuration
func (c *TocsinConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := ValidatePrefix(c.Prefix); err != nil {
		return err
	}

	switch c.Facility {
	case FacilityLocal, FacilityDBus:
	case FacilityRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			return fmt.Errorf("facility 'redis' requires redis.url")
		}
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
		if c.Redis.Timeout < 0 {
			return fmt.Errorf("redis.timeout must be >= 0, got %s", c.Redis.Timeout)
		}
	case FacilityFS:
		if c.FS == nil || c.FS.Dir == "" {
			return fmt.Errorf("facility 'fs' requires fs.dir")
		}
	default:
		return fmt.Errorf("invalid facility: %s (must be 'local', 'redis', 'fs', or 'dbus')", c.Facility)
	}

	if c.PostRate != nil {
		if c.PostRate.PerSecond <= 0 {
			return fmt.Errorf("post_rate.per_second must be > 0, got %g", c.PostRate.PerSecond)
		}
		// Apply default burst if not specified
		if c.PostRate.Burst == 0 {
			c.PostRate.Burst = 1
		}
		if c.PostRate.Burst < 0 {
			return fmt.Errorf("post_rate.burst must be >= 1, got %d", c.PostRate.Burst)
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	return nil
}

// ApplyEnv overrides fields from TOCSIN_* environment variables.
// lookup is normally os.LookupEnv.
func (c *TocsinConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TOCSIN_PREFIX"); ok {
		c.Prefix = v
	}
	if v, ok := lookup("TOCSIN_FACILITY"); ok {
		c.Facility = v
	}
	if v, ok := lookup("TOCSIN_REDIS_URL"); ok {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
	if v, ok := lookup("TOCSIN_REDIS_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse TOCSIN_REDIS_TIMEOUT: %w", err)
		}
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.Timeout = d
	}
	if v, ok := lookup("TOCSIN_FS_DIR"); ok {
		if c.FS == nil {
			c.FS = &FSConfig{}
		}
		c.FS.Dir = v
	}
	if v, ok := lookup("TOCSIN_POST_RATE"); ok {
		perSecond, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("failed to parse TOCSIN_POST_RATE: %w", err)
		}
		if c.PostRate == nil {
			c.PostRate = &PostRateConfig{}
		}
		c.PostRate.PerSecond = perSecond
	}
	if v, ok := lookup("TOCSIN_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("TOCSIN_LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	return nil
}

// Load reads tocsin.yml from the specified path. Fields missing from the
// file keep their Default values. The result is not validated, so callers
// can apply overrides first.
func Load(path string) (*TocsinConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return config, nil
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(path string) (*TocsinConfig, error) {
	config, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// Resolve loads the file, applies environment overrides and validates the result.
func Resolve(path string, lookup func(string) (string, bool)) (*TocsinConfig, error) {
	config, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
