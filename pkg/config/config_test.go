package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "MLB", cfg.Collection.SiteID)
	assert.Equal(t, 10000, cfg.Collection.TargetSize)
	assert.Equal(t, StrategyBalance, cfg.Collection.Strategy)
	assert.Equal(t, 4, cfg.Collection.Parallelism)
	assert.Equal(t, 20, cfg.Collection.PageSize)
	assert.Equal(t, 50, cfg.Collection.SpeedPageSize)
	assert.Equal(t, 0.2, cfg.Collection.FairnessTolerance)
	assert.Equal(t, 60*time.Second, cfg.Auth.SafetyMargin)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.BackoffMax)
	assert.Equal(t, "./datasets", cfg.Output.Directory)
	assert.Equal(t, "input_dataset.jsonl", cfg.Output.DatasetFile)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazmate.yaml")
	content := `
auth:
  client_id: "app-123"
  safety_margin: 90s
collection:
  target_size: 500
  strategy: speed
  deadline: 30m
rate_limit:
  backoff_base: 10s
  backoff_max: 2m
retry:
  timeout: 45
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "app-123", cfg.Auth.ClientID)
	assert.Equal(t, 90*time.Second, cfg.Auth.SafetyMargin)
	assert.Equal(t, 500, cfg.Collection.TargetSize)
	assert.Equal(t, StrategySpeed, cfg.Collection.Strategy)
	assert.Equal(t, 30*time.Minute, cfg.Collection.Deadline)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.BackoffBase)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.BackoffMax)
	// Bare integers are read as seconds
	assert.Equal(t, 45*time.Second, cfg.Retry.Timeout)

	// Fields absent from the file keep their defaults
	assert.Equal(t, "MLB", cfg.Collection.SiteID)
	assert.Equal(t, 4, cfg.Collection.Parallelism)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("collection: [unclosed"), 0600))

		cfg := DefaultConfig()
		assert.Error(t, cfg.LoadFromFile(path))
	})

	t.Run("invalid duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("collection:\n  deadline: soon\n"), 0600))

		cfg := DefaultConfig()
		err := cfg.LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid duration")
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HAZMATE_CLIENT_ID", "env-client")
	t.Setenv("HAZMATE_CLIENT_SECRET", "env-secret")
	t.Setenv("HAZMATE_SITE_ID", "MLA")
	t.Setenv("HAZMATE_TARGET_SIZE", "2500")
	t.Setenv("HAZMATE_STRATEGY", "SPEED")
	t.Setenv("HAZMATE_PARALLELISM", "8")
	t.Setenv("HAZMATE_REQUESTS_PER_MINUTE", "60")
	t.Setenv("HAZMATE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-client", cfg.Auth.ClientID)
	assert.Equal(t, "env-secret", cfg.Auth.ClientSecret)
	assert.Equal(t, "MLA", cfg.Collection.SiteID)
	assert.Equal(t, 2500, cfg.Collection.TargetSize)
	assert.Equal(t, StrategySpeed, cfg.Collection.Strategy)
	assert.Equal(t, 8, cfg.Collection.Parallelism)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresBadValues(t *testing.T) {
	t.Setenv("HAZMATE_TARGET_SIZE", "not-a-number")
	t.Setenv("HAZMATE_PARALLELISM", "-3")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 10000, cfg.Collection.TargetSize)
	assert.Equal(t, 4, cfg.Collection.Parallelism)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"target-size":  300,
		"strategy":     "Speed",
		"parallelism":  2,
		"site":         "MLM",
		"catalog":      "custom.yaml",
		"output":       "/tmp/out",
		"metrics-addr": ":9091",
		"log-level":    "warn",
		"deadline":     15 * time.Minute,
		"max-pages":    100,
	})

	assert.Equal(t, 300, cfg.Collection.TargetSize)
	assert.Equal(t, StrategySpeed, cfg.Collection.Strategy)
	assert.Equal(t, 2, cfg.Collection.Parallelism)
	assert.Equal(t, "MLM", cfg.Collection.SiteID)
	assert.Equal(t, "custom.yaml", cfg.Collection.CatalogFile)
	assert.Equal(t, "/tmp/out", cfg.Output.Directory)
	assert.Equal(t, ":9091", cfg.Output.MetricsAddr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 15*time.Minute, cfg.Collection.Deadline)
	assert.Equal(t, 100, cfg.Collection.MaxPages)
}

func TestMergeCommandLineFlagsIgnoresZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"target-size": 0,
		"strategy":    "",
		"parallelism": -1,
	})

	assert.Equal(t, 10000, cfg.Collection.TargetSize)
	assert.Equal(t, StrategyBalance, cfg.Collection.Strategy)
	assert.Equal(t, 4, cfg.Collection.Parallelism)
}

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.ClientID = "app"
	cfg.Auth.ClientSecret = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.Auth.ClientID = "" },
			wantErr: "client ID",
		},
		{
			name:    "missing client secret",
			mutate:  func(c *Config) { c.Auth.ClientSecret = "" },
			wantErr: "client secret",
		},
		{
			name:    "zero target size",
			mutate:  func(c *Config) { c.Collection.TargetSize = 0 },
			wantErr: "target size",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Collection.Strategy = "random" },
			wantErr: "strategy",
		},
		{
			name:    "excessive parallelism",
			mutate:  func(c *Config) { c.Collection.Parallelism = 64 },
			wantErr: "parallelism",
		},
		{
			name:    "page size above API cap",
			mutate:  func(c *Config) { c.Collection.PageSize = 100 },
			wantErr: "page size",
		},
		{
			name:    "fairness tolerance above one",
			mutate:  func(c *Config) { c.Collection.FairnessTolerance = 1.5 },
			wantErr: "fairness tolerance",
		},
		{
			name:    "zero requests per minute",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerMinute = 0 },
			wantErr: "requests per minute",
		},
		{
			name:    "backoff multiplier below one",
			mutate:  func(c *Config) { c.RateLimit.BackoffMultiplier = 0.5 },
			wantErr: "backoff multiplier",
		},
		{
			name:    "missing output directory",
			mutate:  func(c *Config) { c.Output.Directory = "" },
			wantErr: "output directory",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HAZMATE_CLIENT_ID", "")
	t.Setenv("HAZMATE_SITE_ID", "")

	path := filepath.Join(t.TempDir(), "hazmate.yaml")
	content := `
auth:
  client_id: "file-client"
  client_secret: "file-secret"
collection:
  target_size: 100
  parallelism: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("HAZMATE_TARGET_SIZE", "200")

	cfg, err := Load(path, map[string]interface{}{"target-size": 300})
	require.NoError(t, err)

	// Flags beat env, env beats file, file beats defaults
	assert.Equal(t, 300, cfg.Collection.TargetSize)
	assert.Equal(t, 2, cfg.Collection.Parallelism)
	assert.Equal(t, "file-client", cfg.Auth.ClientID)
	assert.Equal(t, "MLB", cfg.Collection.SiteID)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HAZMATE_CLIENT_ID", "")
	t.Setenv("HAZMATE_CLIENT_SECRET", "")

	path := filepath.Join(t.TempDir(), "hazmate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection:\n  target_size: 10\n"), 0600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	cfg := validTestConfig()
	cfg.Collection.Deadline = 45 * time.Minute
	cfg.RateLimit.BackoffBase = 20 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))

	assert.Equal(t, cfg.Auth, loaded.Auth)
	assert.Equal(t, cfg.Collection, loaded.Collection)
	assert.Equal(t, cfg.RateLimit, loaded.RateLimit)
	assert.Equal(t, cfg.Retry, loaded.Retry)
	assert.Equal(t, cfg.Output, loaded.Output)
	assert.Equal(t, cfg.Logging, loaded.Logging)
}
