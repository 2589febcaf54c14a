package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		yamlContent      string
		skipFileCreation bool
		wantConfig       *Config
		wantErr          string
	}{
		{
			name: "full_config",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho", "ddr-testing"]
refresh:
  interval: "60m"
  margin: "30m"
  schedule: "@every 30s"
  respectCollectionLocks: true
  executionLockTTL: "10m"
provider:
  timeout: "90s"
  annex: true
  remote: mirror
cache:
  type: redis
  redis:
    address: localhost:6379
    db: 2
  statusTTL: "1m"
api:
  address: ":9090"
telemetry:
  enabled: true
  metrics:
    enabled: true
    prometheus: true
logging:
  file: /var/log/ddr/gitstatus.log
  maxSizeMB: 10
  maxBackups: 5`,
			wantConfig: &Config{
				BasePath: "/media/ddrshared",
				RepoOrgs: []string{"ddr-densho", "ddr-testing"},
				Refresh: RefreshConfig{
					Interval:               "60m",
					Margin:                 "30m",
					Schedule:               "@every 30s",
					RespectCollectionLocks: true,
					ExecutionLockTTL:       "10m",
				},
				Provider: ProviderConfig{Timeout: "90s", Annex: true, Remote: "mirror"},
				Cache: CacheConfig{
					Type:      "redis",
					Redis:     &RedisConfig{Address: "localhost:6379", DB: 2},
					StatusTTL: "1m",
				},
				API:     APIConfig{Address: ":9090"},
				Logging: LoggingConfig{File: "/var/log/ddr/gitstatus.log", MaxSizeMB: 10, MaxBackups: 5},
				Telemetry: &telemetry.Config{
					Enabled: true,
					Metrics: &telemetry.MetricsConfig{Enabled: true, Prometheus: true},
				},
			},
		},
		{
			name: "minimal_config",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]`,
			wantConfig: &Config{
				BasePath: "/media/ddrshared",
				RepoOrgs: []string{"ddr-densho"},
			},
		},
		{
			name:             "file_not_found",
			skipFileCreation: true,
			wantErr:          "failed to read config file",
		},
		{
			name:        "invalid_yaml",
			yamlContent: "basePath: [",
			wantErr:     "failed to parse YAML config",
		},
		{
			name:        "missing_base_path",
			yamlContent: `repoOrgs: ["ddr-densho"]`,
			wantErr:     "basePath is required",
		},
		{
			name:        "missing_repo_orgs",
			yamlContent: `basePath: /media/ddrshared`,
			wantErr:     "at least one repoOrg",
		},
		{
			name: "malformed_repo_org",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddrdensho"]`,
			wantErr: "repoOrgs[0]",
		},
		{
			name: "duplicate_repo_org",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho", "ddr-densho"]`,
			wantErr: "duplicate repoOrg",
		},
		{
			name: "invalid_interval",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
refresh:
  interval: soon`,
			wantErr: "refresh.interval must be a valid duration",
		},
		{
			name: "zero_execution_lock_ttl",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
refresh:
  executionLockTTL: 0s`,
			wantErr: "refresh.executionLockTTL must be positive",
		},
		{
			name: "invalid_schedule",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
refresh:
  schedule: "every minute"`,
			wantErr: "refresh.schedule must be a valid cron expression",
		},
		{
			name: "redis_without_address",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
cache:
  type: redis`,
			wantErr: "cache.redis.address is required",
		},
		{
			name: "telemetry_without_exporter",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
telemetry:
  enabled: true
  metrics:
    enabled: true`,
			wantErr: "telemetry: metrics",
		},
		{
			name: "unknown_cache_type",
			yamlContent: `basePath: /media/ddrshared
repoOrgs: ["ddr-densho"]
cache:
  type: memcached`,
			wantErr: "cache.type must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if !tt.skipFileCreation {
				require.NoError(t, os.WriteFile(configPath, []byte(tt.yamlContent), 0600))
			} else {
				// the directory exists, so symlink resolution passes and the read fails
				configPath = filepath.Dir(configPath)
			}

			cfg, err := LoadConfig(WithConfigPath(configPath))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(""))
	assert.EqualError(t, err, "path is required")

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, err, "failed to evaluate symlinks")

	_, err = LoadConfig()
	assert.EqualError(t, err, "path is required")
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("basePath: /media/ddrshared\nrepoOrgs: [ddr-densho]\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultInterval, cfg.GetInterval())
	assert.Equal(t, DefaultMargin, cfg.GetMargin())
	assert.Equal(t, DefaultSchedule, cfg.GetSchedule())
	assert.Equal(t, 5*time.Minute, cfg.GetExecutionLockTTL())
	assert.Equal(t, 2*time.Minute, cfg.GetProviderTimeout())
	assert.Equal(t, "origin", cfg.GetRemote())
	assert.Equal(t, CacheTypeMemory, cfg.GetCacheType())
	assert.Equal(t, 30*time.Second, cfg.GetStatusTTL())
	assert.Equal(t, ":8080", cfg.GetAPIAddress())
	assert.Equal(t, DefaultLogMaxSizeMB, cfg.GetLogMaxSizeMB())
	assert.Equal(t, DefaultLogMaxBackups, cfg.GetLogMaxBackups())
	assert.False(t, cfg.Refresh.RespectCollectionLocks)
}

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Refresh:  RefreshConfig{Interval: "5m", Margin: "1m", ExecutionLockTTL: "30s", Schedule: "*/2 * * * *"},
		Provider: ProviderConfig{Timeout: "10s", Remote: "mirror"},
		Cache:    CacheConfig{Type: CacheTypeRedis, StatusTTL: "2m"},
		API:      APIConfig{Address: "127.0.0.1:9000"},
	}

	assert.Equal(t, 5*time.Minute, cfg.GetInterval())
	assert.Equal(t, time.Minute, cfg.GetMargin())
	assert.Equal(t, 30*time.Second, cfg.GetExecutionLockTTL())
	assert.Equal(t, "*/2 * * * *", cfg.GetSchedule())
	assert.Equal(t, 10*time.Second, cfg.GetProviderTimeout())
	assert.Equal(t, "mirror", cfg.GetRemote())
	assert.Equal(t, CacheTypeRedis, cfg.GetCacheType())
	assert.Equal(t, 2*time.Minute, cfg.GetStatusTTL())
	assert.Equal(t, "127.0.0.1:9000", cfg.GetAPIAddress())
}

func TestRedisConfig_GetPassword(t *testing.T) {
	// Not parallel: modifies the environment
	passwordFile := filepath.Join(t.TempDir(), "redis-password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("s3cret\n"), 0600))

	password, err := (&RedisConfig{PasswordFile: passwordFile}).GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)

	_, err = (&RedisConfig{PasswordFile: filepath.Join(t.TempDir(), "missing")}).GetPassword()
	assert.Error(t, err)

	t.Setenv(RedisPasswordEnvVar, "from-env")
	password, err = (&RedisConfig{}).GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "from-env", password)
}
