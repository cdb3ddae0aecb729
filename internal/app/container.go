// Package app wires the entitle components into a running client.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/entitle/internal/backend"
	"github.com/felixgeelhaar/entitle/internal/purchaser/application"
	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/felixgeelhaar/entitle/internal/purchaser/infrastructure/persistence"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/dispatch"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/transport"
	"github.com/felixgeelhaar/entitle/internal/store"
	"github.com/felixgeelhaar/entitle/pkg/config"
	"github.com/felixgeelhaar/entitle/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // sqlite cache backend driver
)

// Container holds all wired dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Device cache backend
	Cache       domain.CacheRepository
	DB          *pgxpool.Pool
	SQLiteDB    *sql.DB
	RedisClient *redis.Client

	// Publishers. Bus is set when the in-process bus backs EventPublisher,
	// so local consumers can subscribe to purchaser events.
	EventPublisher eventbus.Publisher
	Bus            *eventbus.InProcessBus

	// Request pipeline
	Dispatcher *dispatch.Dispatcher
	Transport  *transport.Client
	Gateway    *backend.Gateway

	// Billing connection
	StoreWrapper *store.Wrapper
	MainExecutor *store.SerialExecutor

	Metrics observability.Metrics

	// Reconciliation core
	Client *application.Client
}

// Options tunes container construction beyond what configuration carries.
type Options struct {
	// StoreFactory builds provider billing clients. Nil selects the
	// offline client, which reports an empty catalog and no history.
	StoreFactory store.ClientFactory
	// Metrics defaults to a noop recorder.
	Metrics observability.Metrics
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, domain.ErrMissingBaseURL
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	c.Metrics = metrics

	cache, err := c.initCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Cache = cache

	// Event publisher: RabbitMQ when configured, the in-process bus in
	// development, noop otherwise. A broker failure is fatal only outside
	// development.
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			if !cfg.IsDevelopment() {
				c.closePersistence()
				return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			logger.Warn("RabbitMQ not available, using in-process bus", "error", err)
			c.Bus = eventbus.NewInProcessBus(logger)
			c.EventPublisher = c.Bus
		} else {
			c.EventPublisher = publisher
		}
	} else if cfg.IsDevelopment() {
		c.Bus = eventbus.NewInProcessBus(logger)
		c.EventPublisher = c.Bus
	} else {
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	}

	c.Transport = transport.NewClient(transport.Config{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.APIBaseURL,
		BreakerThreshold: 5,
	}, logger)
	c.Dispatcher = dispatch.NewDispatcher(cfg.DispatcherWorkers, logger)
	c.Gateway = backend.NewGateway(c.Dispatcher, c.Transport, metrics, logger)

	factory := opts.StoreFactory
	if factory == nil {
		logger.Info("no billing provider configured, using offline store")
		factory = store.NewOfflineClientFactory()
	}
	c.MainExecutor = store.NewSerialExecutor()
	c.StoreWrapper = store.NewWrapper(factory, c.MainExecutor, logger)

	client, err := application.New(application.Config{
		APIKey:             cfg.APIKey,
		AppUserID:          cfg.AppUserID,
		CacheRefreshPeriod: cfg.CacheRefreshPeriod,
		Backend:            c.Gateway,
		Store:              c.StoreWrapper,
		Cache:              cache,
		Publisher:          c.EventPublisher,
		Logger:             logger,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Client = client

	logger.Info("entitle client initialized",
		"cache_backend", cfg.CacheBackend,
		"app_user_id", client.AppUserID(),
	)
	return c, nil
}

func (c *Container) initCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.CacheRepository, error) {
	switch cfg.CacheBackend {
	case "", "file":
		return persistence.NewFileRepository(cfg.CachePath + "/cache.json"), nil

	case "sqlite":
		dbConn, err := sql.Open("sqlite", cfg.CachePath+"/cache.db")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite cache: %w", err)
		}
		repo, err := persistence.NewSQLiteRepository(dbConn)
		if err != nil {
			dbConn.Close()
			return nil, fmt.Errorf("failed to initialize SQLite cache: %w", err)
		}
		c.SQLiteDB = dbConn
		logger.Info("using SQLite cache", "path", cfg.CachePath)
		return repo, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo, err := persistence.NewPostgresRepository(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize Postgres cache: %w", err)
		}
		c.DB = pool
		logger.Info("using Postgres cache")
		return repo, nil

	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			if !cfg.IsDevelopment() {
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("Redis not available, falling back to file cache", "error", err)
			return persistence.NewFileRepository(cfg.CachePath + "/cache.json"), nil
		}
		c.RedisClient = redisClient
		logger.Info("using Redis cache")
		return persistence.NewRedisRepository(redisClient), nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.Client != nil {
		c.Client.Close()
	} else if c.Gateway != nil {
		c.Gateway.Close()
	}

	if c.StoreWrapper != nil {
		c.StoreWrapper.SetListener(nil)
	}
	if c.MainExecutor != nil {
		c.MainExecutor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	c.closePersistence()
}

func (c *Container) closePersistence() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		}
	}
}
