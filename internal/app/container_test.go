package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitle/pkg/config"
	"github.com/felixgeelhaar/entitle/pkg/observability"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:             "development",
		APIKey:             "test-key",
		APIBaseURL:         backendURL,
		CacheBackend:       "file",
		CachePath:          t.TempDir(),
		CacheRefreshPeriod: time.Minute,
		DispatcherWorkers:  1,
	}
}

func newBackendStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subscriber": {"subscriptions": {}, "other_purchases": {}}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewContainerWiresDefaults(t *testing.T) {
	server := newBackendStub(t)
	cfg := testConfig(t, server.URL)

	container, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	defer container.Close()

	require.NotNil(t, container.Client)
	require.NotNil(t, container.Gateway)
	require.NotNil(t, container.StoreWrapper)
	require.Equal(t, observability.NoopMetrics{}, container.Metrics)
}

func TestNewContainerDevelopmentUsesInProcessBus(t *testing.T) {
	server := newBackendStub(t)
	cfg := testConfig(t, server.URL)

	container, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	defer container.Close()

	require.NotNil(t, container.Bus)
	require.Same(t, container.Bus, container.EventPublisher)
}

func TestNewContainerProductionUsesNoopPublisher(t *testing.T) {
	server := newBackendStub(t)
	cfg := testConfig(t, server.URL)
	cfg.AppEnv = "production"

	container, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	defer container.Close()

	require.Nil(t, container.Bus)
	require.IsType(t, &eventbus.NoopPublisher{}, container.EventPublisher)
}

func TestNewContainerRejectsBlankBaseURL(t *testing.T) {
	cfg := testConfig(t, "   ")

	_, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.Error(t, err)
}

func TestNewContainerRejectsUnknownCacheBackend(t *testing.T) {
	server := newBackendStub(t)
	cfg := testConfig(t, server.URL)
	cfg.CacheBackend = "memcached"

	_, err := NewContainer(context.Background(), cfg, testLogger(), Options{})
	require.Error(t, err)
}
