package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querychat/querychat/internal/api"
	"github.com/querychat/querychat/internal/backend"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/feedback"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/pipeline"
	"github.com/querychat/querychat/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("querychat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	defaultClient, err := backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.DefaultURL,
		HealthTimeout:   cfg.Backend.HealthTimeout,
		QueryTimeout:    cfg.Backend.QueryTimeout,
		DownloadTimeout: cfg.Backend.DownloadTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize backend client", slog.Any("error", err))
		os.Exit(1)
	}
	registry := backend.NewRegistry(defaultClient)

	sources, err := backend.ParseSources(cfg.Backend.Sources)
	if err != nil {
		logger.Error("failed to parse data sources", slog.Any("error", err))
		os.Exit(1)
	}
	for name, endpoint := range sources {
		client, err := backend.NewClient(backend.Config{
			BaseURL:         endpoint,
			HealthTimeout:   cfg.Backend.HealthTimeout,
			QueryTimeout:    cfg.Backend.QueryTimeout,
			DownloadTimeout: cfg.Backend.DownloadTimeout,
		})
		if err != nil {
			logger.Error("failed to initialize data source client",
				slog.String("source", name), slog.Any("error", err))
			os.Exit(1)
		}
		registry.Register(name, client)
		logger.Info("registered data source", slog.String("source", name), slog.String("url", endpoint))
	}

	store := session.NewStore(session.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		MaxHistory:  cfg.Session.MaxHistory,
	}, logger)

	chat := &pipeline.Service{
		Sessions: store,
		Resolve:  func(name string) pipeline.Gateway { return registry.Lookup(name) },
		Config: pipeline.Config{
			ContextWindow:      cfg.Session.ContextWindow,
			InitialDisplayRows: cfg.UI.InitialDisplayRows,
			RowCacheLimit:      cfg.Backend.RowCacheLimit,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:   logger,
		Chat:     chat,
		Backends: registry,
		Feedback: feedback.NewLog(cfg.Feedback.Path, logger),
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions are purged on access; this loop keeps the active-session
	// gauge honest while the service is idle.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.EvictExpired()
				observability.SetActiveSessions(store.Len())
			}
		}
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend_url", cfg.Backend.DefaultURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
