// Package main is the entrypoint for the roombridge server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/roombridge/internal/api"
	"github.com/kiranshivaraju/roombridge/internal/api/handler"
	mw "github.com/kiranshivaraju/roombridge/internal/api/middleware"
	"github.com/kiranshivaraju/roombridge/internal/cache"
	"github.com/kiranshivaraju/roombridge/internal/config"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/install"
	"github.com/kiranshivaraju/roombridge/internal/metrics"
	"github.com/kiranshivaraju/roombridge/internal/notifier"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/internal/wizard"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	shutdownTimeout = 30 * time.Second
	serviceName     = "roombridge"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "base_url", cfg.Server.BaseURL, "orphan_policy", cfg.Plugin.OrphanPolicy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	tracing, err := mw.NewTracing(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()
	slog.Info("tracing initialized", "enabled", tracing.Enabled())

	pgStore := store.NewPostgresStore(pool)
	client := hipchat.NewHTTPClient(cfg.HipChat.CapabilitiesTimeout)
	router := buildRouter(cfg, pgStore, redisCache, client, metrics.New(prometheus.NewRegistry()), tracing)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildRouter wires every component on top of the given backends.
func buildRouter(cfg *config.Config, st store.Store, c cache.Cache, client hipchat.Client, m *metrics.Metrics, tracing *mw.Tracing) http.Handler {
	resolver := roomctx.NewResolver(st, client, c, cfg.HipChat.TokenExpiryMargin)
	plugin := notifier.New(st, resolver, m, notifier.Options{
		Timeout:            cfg.HipChat.NotifyTimeout,
		OrphanPolicy:       cfg.Plugin.OrphanPolicy,
		BaseURL:            cfg.Server.BaseURL,
		HostedDomainSuffix: cfg.Host.HostedDomainSuffix,
	})
	handshake := install.NewHandshake(st, client, resolver, plugin, m, install.Options{
		CapabilitiesTimeout:      cfg.HipChat.CapabilitiesTimeout,
		RollbackOnRefreshFailure: cfg.HipChat.RollbackOnRefreshFailure,
	})

	return api.NewRouter(api.Dependencies{
		Auth:          mw.NewAuth(st),
		SignedRequest: mw.NewSignedRequest(resolver),
		Session:       mw.NewSession(cfg.Host.SessionCookie, c, st),
		Tracing:       tracing,

		DescriptorHandler: handler.NewDescriptorHandler(cfg.Server.BaseURL),
		InstallHandler:    handler.NewInstallHandler(handshake),
		UninstallHandler:  handler.NewUninstallHandler(handshake),
		ConfigureHandler: handler.NewConfigureHandler(wizard.New(st, plugin), st, handler.ConfigureOptions{
			LoginURL: cfg.Host.LoginURL,
			Debug:    cfg.Server.Debug,
		}),
		RoomMessageHandler: handler.NewRoomMessageHandler(),

		HealthHandler:  handler.NewHealthHandler(st, c),
		MetricsHandler: m.Handler(),
		EventHandler:   handler.NewEventHandler(plugin),
		AlertHandler:   handler.NewAlertHandler(plugin),
		Plugin:         handler.NewPluginHandlers(plugin, st),
	})
}
