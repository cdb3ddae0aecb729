package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ENTITLE_API_KEY", "")
	t.Setenv("ENTITLE_API_URL", "")
	t.Setenv("ENTITLE_CACHE_BACKEND", "")
	t.Setenv("ENTITLE_CACHE_REFRESH_PERIOD", "")
	t.Setenv("ENTITLE_DISPATCHER_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.True(t, cfg.IsDevelopment())
	require.False(t, cfg.IsProduction())
	require.Equal(t, "https://api.entitle.dev/v1", cfg.APIBaseURL)
	require.Equal(t, "file", cfg.CacheBackend)
	require.NotEmpty(t, cfg.CachePath)
	require.Equal(t, time.Minute, cfg.CacheRefreshPeriod)
	require.Equal(t, 2, cfg.DispatcherWorkers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENTITLE_API_KEY", "key-123")
	t.Setenv("ENTITLE_API_URL", "https://staging.example.com/v1")
	t.Setenv("ENTITLE_APP_USER_ID", "user-1")
	t.Setenv("ENTITLE_CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ENTITLE_CACHE_REFRESH_PERIOD", "5m")
	t.Setenv("ENTITLE_DISPATCHER_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	require.True(t, cfg.IsProduction())
	require.Equal(t, "key-123", cfg.APIKey)
	require.Equal(t, "https://staging.example.com/v1", cfg.APIBaseURL)
	require.Equal(t, "user-1", cfg.AppUserID)
	require.Equal(t, "redis", cfg.CacheBackend)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, 5*time.Minute, cfg.CacheRefreshPeriod)
	require.Equal(t, 4, cfg.DispatcherWorkers)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("ENTITLE_CACHE_REFRESH_PERIOD", "soon")
	t.Setenv("ENTITLE_DISPATCHER_WORKERS", "many")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, time.Minute, cfg.CacheRefreshPeriod)
	require.Equal(t, 2, cfg.DispatcherWorkers)
}
