// Package main is the entrypoint for the policy administration API server.
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

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/api"
	"github.com/kiranshivaraju/policyadmin/internal/api/handler"
	mw "github.com/kiranshivaraju/policyadmin/internal/api/middleware"
	"github.com/kiranshivaraju/policyadmin/internal/cache"
	"github.com/kiranshivaraju/policyadmin/internal/config"
	"github.com/kiranshivaraju/policyadmin/internal/store"
)

const shutdownTimeout = 30 * time.Second

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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "isolation", cfg.Database.Isolation)

	isolation, err := store.IsolationLevel(cfg.Database.Isolation)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Wire services and router
	pgStore := store.NewPostgresStore(pool, store.WithIsolation(isolation))
	router := api.NewRouter(wire(cfg, pgStore, redisCache, slog.Default()))

	// 6. Start HTTP server
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

// wire builds the admin services over s and c and the router dependencies
// that expose them.
func wire(cfg *config.Config, s store.Store, c cache.Cache, logger *slog.Logger) api.Dependencies {
	guard := admin.NewGuard(s, cache.NewGroupCache(c, cfg.Cache.AuthorizedGroupsTTL), logger)
	policies := cache.NewPolicyCache(c, cfg.Cache.CompiledPolicyTTL)
	tickets := cache.NewTicketStore(c, cfg.Cache.DeletionTicketTTL)

	return api.Dependencies{
		Auth:      mw.NewAuth(guard),
		RateLimit: mw.NewRateLimit(c, cfg.Auth.RateLimitPerMinute),

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": s,
			"cache":    c,
		}),
		Hierarchy:   handler.NewHierarchy(admin.NewHierarchy(s, guard, cfg.Auth.BcryptCost, logger)),
		Permissions: handler.NewPermissions(admin.NewPermissions(s, guard, policies, logger)),
		Deletions:   handler.NewDeletions(admin.NewCascade(s, guard, tickets, logger, admin.WithPolicyCache(policies))),
	}
}
