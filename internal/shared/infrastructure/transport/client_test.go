package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestPerformRequestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "/subscribers/user-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	resp, err := client.PerformRequest(context.Background(), "/subscribers/user-1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok": true}`, string(resp.Body))
}

func TestPerformRequestPostsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		require.Equal(t, "tok-1", body["fetch_token"])
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	resp, err := client.PerformRequest(context.Background(), "/receipts", map[string]any{"fetch_token": "tok-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPerformRequestReturnsErrorStatusesAsResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	resp, err := client.PerformRequest(context.Background(), "/subscribers/u", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPerformRequestSetsExtraHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "observer", r.Header.Get("X-Observer-Mode"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	_, err := client.PerformRequest(context.Background(), "/", nil, map[string]string{"X-Observer-Mode": "observer"})
	require.NoError(t, err)
}

func TestBreakerOpensAfterConsecutiveNetworkFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // every request now fails at the dial

	client := NewClient(Config{
		APIKey:           "secret",
		BaseURL:          server.URL,
		BreakerThreshold: 2,
	}, testLogger())

	for i := 0; i < 2; i++ {
		_, err := client.PerformRequest(context.Background(), "/", nil, nil)
		require.Error(t, err)
	}

	// The breaker is now open: this fails fast without dialing.
	_, err := client.PerformRequest(context.Background(), "/", nil, nil)
	require.Error(t, err)
}
