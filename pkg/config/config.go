// Package config loads entitle configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Backend
	APIKey     string
	APIBaseURL string

	// Identity
	AppUserID string

	// Device cache
	CacheBackend string // file, sqlite, postgres, redis
	CachePath    string // file and sqlite backends
	DatabaseURL  string // postgres backend
	RedisURL     string // redis backend

	// Reconciliation
	CacheRefreshPeriod time.Duration
	DispatcherWorkers  int

	// Events
	RabbitMQURL string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		APIKey:             getEnv("ENTITLE_API_KEY", ""),
		APIBaseURL:         getEnv("ENTITLE_API_URL", "https://api.entitle.dev/v1"),
		AppUserID:          getEnv("ENTITLE_APP_USER_ID", ""),
		CacheBackend:       getEnv("ENTITLE_CACHE_BACKEND", "file"),
		CachePath:          getEnv("ENTITLE_CACHE_PATH", defaultCachePath()),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		CacheRefreshPeriod: getEnvDuration("ENTITLE_CACHE_REFRESH_PERIOD", time.Minute),
		DispatcherWorkers:  getEnvInt("ENTITLE_DISPATCHER_WORKERS", 2),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".entitle"
	}
	return home + "/.entitle"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
