// Package transport provides the authenticated request/response primitive
// the backend gateway is built on. It performs one blocking round trip per
// call; all async behavior lives in the dispatcher above it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const defaultTimeout = 15 * time.Second

// Response is the outcome of a completed round trip. The status code is
// reported as-is; interpreting it is the caller's concern.
type Response struct {
	StatusCode int
	Body       []byte
}

// Config configures the transport client.
type Config struct {
	// APIKey is sent as a Bearer token on every request.
	APIKey string
	// BaseURL prefixes every request path.
	BaseURL string
	// Timeout bounds each round trip. Defaults to 15s.
	Timeout time.Duration
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Zero disables the breaker.
	BreakerThreshold uint32
}

// Client performs authenticated JSON requests against the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	logger     *slog.Logger
}

// NewClient creates a transport client with Bearer authentication.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = timeout

	var breaker *gobreaker.CircuitBreaker[*Response]
	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		settings := gobreaker.Settings{
			Name: "entitle-backend",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}
		breaker = gobreaker.NewCircuitBreaker[*Response](settings)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}
}

// PerformRequest issues a GET (nil body) or POST (JSON body) against the
// given backend path. Network-level failures return an error; HTTP statuses
// of any value return a Response.
func (c *Client) PerformRequest(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, path, body, headers)
	}
	return c.breaker.Execute(func() (*Response, error) {
		return c.roundTrip(ctx, path, body, headers)
	})
}

func (c *Client) roundTrip(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "path", path, "error", err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("request completed",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
