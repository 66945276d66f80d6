package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no user config so a
// developer's bucketmeta.yaml cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		SetConfigFile("")
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Scrape.Workers)
		assert.Zero(t, cfg.Scrape.RateLimit)
		assert.Equal(t, 1000, cfg.Scrape.MaxKeys)
		assert.Empty(t, cfg.S3.Profile)
		assert.Equal(t, 10, cfg.HTTP.MaxRetries)
		assert.Equal(t, 5*time.Second, cfg.HTTP.BackoffFactor)
		assert.Equal(t, 120*time.Second, cfg.HTTP.MaxBackoff)
		assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
		assert.Equal(t, time.Second, cfg.DB.ConnectTimeout)
		assert.Equal(t, ".", cfg.File.BaseDir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx, map[string]any{
			"scrape":  map[string]any{"workers": 8},
			"logging": map[string]any{"level": "debug"},
		})
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.Scrape.Workers)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 1000, cfg.Scrape.MaxKeys)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("BUCKETMETA_WORKERS", "3")
		t.Setenv("BUCKETMETA_LOG_LEVEL", "warn")
		t.Setenv("BUCKETMETA_HTTP_MAX_RETRIES", "2")
		t.Setenv("BUCKETMETA_MINIO_USE_SSL", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Scrape.Workers)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 2, cfg.HTTP.MaxRetries)
		assert.True(t, cfg.MinIO.UseSSL)
	})

	t.Run("DurationFromEnv", func(t *testing.T) {
		isolate(t)
		t.Setenv("BUCKETMETA_HTTP_BACKOFF_FACTOR", "250ms")
		t.Setenv("BUCKETMETA_DB_CONNECT_TIMEOUT", "5s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 250*time.Millisecond, cfg.HTTP.BackoffFactor)
		assert.Equal(t, 5*time.Second, cfg.DB.ConnectTimeout)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(AppName+".yaml", []byte("scrape:\n  workers: 4\n  max_keys: 500\n"), 0o644))
		t.Setenv("BUCKETMETA_WORKERS", "6")

		cfg, err := Load(ctx, map[string]any{"scrape": map[string]any{"workers": 7}})
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Scrape.Workers)
		assert.Equal(t, 500, cfg.Scrape.MaxKeys)

		cfg, err = Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Scrape.Workers)
	})

	t.Run("ExplicitFile", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("s3:\n  profile: sso-admin\n  region: eu-west-1\n"), 0o644))
		SetConfigFile(path)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sso-admin", cfg.S3.Profile)
		assert.Equal(t, "eu-west-1", cfg.S3.Region)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := Load(ctx)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoad_Invalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"zero workers", map[string]any{"scrape": map[string]any{"workers": 0}}},
		{"negative rate", map[string]any{"scrape": map[string]any{"rate_limit": -1.0}}},
		{"max keys too large", map[string]any{"scrape": map[string]any{"max_keys": 5000}}},
		{"negative retries", map[string]any{"http": map[string]any{"max_retries": -1}}},
		{"bad level", map[string]any{"logging": map[string]any{"level": "loud"}}},
		{"zero db timeout", map[string]any{"db": map[string]any{"connect_timeout": "0s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(ctx, tt.overrides)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background(), map[string]any{"scrape": map[string]any{"workers": 9}})
	require.NoError(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.Scrape.Workers, current.Scrape.Workers)
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "info", v.GetString("logging.level"))
	assert.Equal(t, 5, v.GetInt("scrape.workers"))
	assert.Equal(t, "5s", v.GetString("http.backoff_factor"))
	assert.Equal(t, "120s", v.GetString("http.max_backoff"))
	assert.Equal(t, "1s", v.GetString("db.connect_timeout"))
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]string, len(specs))
	for _, s := range specs {
		assert.NotEmpty(t, s.Path, "env var %s should have a path", s.Name)
		names[s.Name] = s.Path
	}
	assert.Equal(t, "logging.level", names["BUCKETMETA_LOG_LEVEL"])
	assert.Equal(t, "scrape.workers", names["BUCKETMETA_WORKERS"])
	assert.Equal(t, "gcs.credentials_file", names["GOOGLE_APPLICATION_CREDENTIALS"])
}

func TestGetUserConfigPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))

	paths := getUserConfigPaths()
	assert.Contains(t, paths, filepath.Join(home, "cfg", AppName))
	assert.Contains(t, paths, filepath.Join(home, "."+AppName))
}
