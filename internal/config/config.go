// Package config provides configuration loading for the gitstatus daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

const (
	// CacheTypeMemory keeps the execution lock and status cache in process
	CacheTypeMemory = "memory"

	// CacheTypeRedis shares the execution lock and status cache between hosts
	CacheTypeRedis = "redis"
)

// Defaults applied by the getters when a field is left empty
const (
	DefaultInterval         = 60 * time.Minute
	DefaultMargin           = 30 * time.Minute
	DefaultSchedule         = "@every 1m"
	DefaultExecutionLockTTL = 5 * time.Minute
	DefaultProviderTimeout  = 2 * time.Minute
	DefaultRemote           = "origin"
	DefaultStatusTTL        = 30 * time.Second
	DefaultAPIAddress       = ":8080"
	DefaultLogMaxSizeMB     = 100
	DefaultLogMaxBackups    = 3
)

// RedisPasswordEnvVar is consulted when no password file is configured
//
//nolint:gosec // G101: This is an environment variable name, not a credential
const RedisPasswordEnvVar = "GITSTATUSD_REDIS_PASSWORD"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// BasePath is the shared volume holding every collection repository
	BasePath string `yaml:"basePath"`

	// RepoOrgs lists the "repo-org" pairs whose collections are refreshed, e.g. "ddr-densho"
	RepoOrgs []string `yaml:"repoOrgs"`

	Refresh  RefreshConfig  `yaml:"refresh,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	API      APIConfig      `yaml:"api,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`

	// Telemetry configures metrics and tracing; nil disables both
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// RefreshConfig controls how often collections are checked
type RefreshConfig struct {
	// Interval is the minimum time between two checks of the same collection (e.g. "60m")
	Interval string `yaml:"interval,omitempty"`

	// Margin is the upper bound of the random delay added to Interval
	Margin string `yaml:"margin,omitempty"`

	// Schedule is the cron expression of the scheduler beat
	Schedule string `yaml:"schedule,omitempty"`

	// RespectCollectionLocks skips collections that are locked for editing.
	// When false, only the global lock pauses refreshes.
	RespectCollectionLocks bool `yaml:"respectCollectionLocks,omitempty"`

	// ExecutionLockTTL must exceed the slowest expected single check
	ExecutionLockTTL string `yaml:"executionLockTTL,omitempty"`
}

// ProviderConfig configures the status check
type ProviderConfig struct {
	Timeout string `yaml:"timeout,omitempty"`
	Annex   bool   `yaml:"annex,omitempty"`
	Remote  string `yaml:"remote,omitempty"`
}

// CacheConfig selects the shared key/value store
type CacheConfig struct {
	Type      string       `yaml:"type,omitempty"`
	Redis     *RedisConfig `yaml:"redis,omitempty"`
	StatusTTL string       `yaml:"statusTTL,omitempty"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Address string `yaml:"address"`

	// PasswordFile is the path to a file containing the Redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	DB int `yaml:"db,omitempty"`
}

// APIConfig configures the HTTP API
type APIConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoggingConfig adds an optional rotating log file next to stderr
type LoggingConfig struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
}

// GetPassword returns the Redis password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the GITSTATUSD_REDIS_PASSWORD environment variable
//
// An unset password is valid for Redis.
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(r.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", r.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(RedisPasswordEnvVar), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetInterval returns refresh.interval, defaulting to 60m
func (c *Config) GetInterval() time.Duration {
	return durationOr(c.Refresh.Interval, DefaultInterval)
}

// GetMargin returns refresh.margin, defaulting to 30m
func (c *Config) GetMargin() time.Duration {
	return durationOr(c.Refresh.Margin, DefaultMargin)
}

// GetSchedule returns the cron expression of the scheduler beat
func (c *Config) GetSchedule() string {
	if c.Refresh.Schedule == "" {
		return DefaultSchedule
	}
	return c.Refresh.Schedule
}

// GetExecutionLockTTL returns refresh.executionLockTTL, defaulting to 5m
func (c *Config) GetExecutionLockTTL() time.Duration {
	return durationOr(c.Refresh.ExecutionLockTTL, DefaultExecutionLockTTL)
}

// GetProviderTimeout returns provider.timeout, defaulting to 2m
func (c *Config) GetProviderTimeout() time.Duration {
	return durationOr(c.Provider.Timeout, DefaultProviderTimeout)
}

// GetRemote returns provider.remote, defaulting to origin
func (c *Config) GetRemote() string {
	if c.Provider.Remote == "" {
		return DefaultRemote
	}
	return c.Provider.Remote
}

// GetCacheType returns cache.type, defaulting to memory
func (c *Config) GetCacheType() string {
	if c.Cache.Type == "" {
		return CacheTypeMemory
	}
	return c.Cache.Type
}

// GetStatusTTL returns how long a sync-status summary stays cached
func (c *Config) GetStatusTTL() time.Duration {
	return durationOr(c.Cache.StatusTTL, DefaultStatusTTL)
}

// GetAPIAddress returns api.address, defaulting to :8080
func (c *Config) GetAPIAddress() string {
	if c.API.Address == "" {
		return DefaultAPIAddress
	}
	return c.API.Address
}

// GetLogMaxSizeMB returns logging.maxSizeMB with its default
func (c *Config) GetLogMaxSizeMB() int {
	if c.Logging.MaxSizeMB <= 0 {
		return DefaultLogMaxSizeMB
	}
	return c.Logging.MaxSizeMB
}

// GetLogMaxBackups returns logging.maxBackups with its default
func (c *Config) GetLogMaxBackups() int {
	if c.Logging.MaxBackups <= 0 {
		return DefaultLogMaxBackups
	}
	return c.Logging.MaxBackups
}

// durationOr parses a duration already checked by validate
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.BasePath == "" {
		return fmt.Errorf("basePath is required")
	}

	if len(c.RepoOrgs) == 0 {
		return fmt.Errorf("at least one repoOrg must be configured")
	}
	seen := make(map[string]bool)
	for i, pair := range c.RepoOrgs {
		if _, _, err := collection.SplitRepoOrg(pair); err != nil {
			return fmt.Errorf("repoOrgs[%d]: %w", i, err)
		}
		if seen[pair] {
			return fmt.Errorf("repoOrgs[%d]: duplicate repoOrg '%s'", i, pair)
		}
		seen[pair] = true
	}

	if err := c.validateRefresh(); err != nil {
		return err
	}

	if err := validateDuration("provider.timeout", c.Provider.Timeout, true); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (c *Config) validateRefresh() error {
	if err := validateDuration("refresh.interval", c.Refresh.Interval, false); err != nil {
		return err
	}
	if err := validateDuration("refresh.margin", c.Refresh.Margin, false); err != nil {
		return err
	}
	if err := validateDuration("refresh.executionLockTTL", c.Refresh.ExecutionLockTTL, true); err != nil {
		return err
	}
	if c.Refresh.Schedule != "" {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			return fmt.Errorf("refresh.schedule must be a valid cron expression (e.g., '@every 1m'): %w", err)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.GetCacheType() {
	case CacheTypeMemory:
	case CacheTypeRedis:
		if c.Cache.Redis == nil || c.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required when cache.type is %s", CacheTypeRedis)
		}
	default:
		return fmt.Errorf("cache.type must be %s or %s, got %s", CacheTypeMemory, CacheTypeRedis, c.Cache.Type)
	}
	return validateDuration("cache.statusTTL", c.Cache.StatusTTL, false)
}

// validateDuration accepts an empty value; positive requires a value greater than zero
func validateDuration(field, value string, positive bool) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d < 0 || (positive && d == 0) {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}
