package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"salesiq/internal/agent"
	"salesiq/internal/config"
	"salesiq/internal/dataset"
	"salesiq/internal/middleware"
	"salesiq/internal/observability"
	"salesiq/internal/server"
)

const csvLoadTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	loader := dataset.NewLoader(logger)
	ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
	defer cancel()

	start := time.Now()
	table, err := loader.Load(ctx, cfg.Dataset.CSVFile)
	if err != nil {
		logger.Error("failed to load sales dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("sales dataset loaded", "rows", table.Len(), "duration", time.Since(start))

	store := dataset.NewStore(table)
	queryAgent := agent.New(store, logger)

	srv := server.NewServer(store, loader, queryAgent, cfg, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down analytics service")
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
