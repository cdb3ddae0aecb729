package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/entitle/adapter/cli"
	"github.com/felixgeelhaar/entitle/internal/app"
	"github.com/felixgeelhaar/entitle/pkg/config"
	"github.com/felixgeelhaar/entitle/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCfg := observability.DefaultLogConfig()
	logCfg.Level = observability.LogLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	logger := observability.NewLogger(logCfg)
	cli.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	// Commands that need the backend fail with a clear message when the
	// API key is missing; version and help still work.
	if cfg.APIKey != "" {
		container, err := app.NewContainer(ctx, cfg, logger, app.Options{})
		if err != nil {
			logger.Error("failed to initialize entitle", "error", err)
			os.Exit(1)
		}
		defer container.Close()
		cli.SetClient(container.Client)
	} else {
		logger.Warn("ENTITLE_API_KEY not set, backend commands disabled")
	}

	cli.Execute()
}
