// Package main is the entrypoint for the genforge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/genforge/internal/api"
	"github.com/kiranshivaraju/genforge/internal/api/handler"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/jobs"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/meshy"
	"github.com/kiranshivaraju/genforge/internal/provider/openai"
	"github.com/kiranshivaraju/genforge/internal/provider/remote"
	"github.com/kiranshivaraju/genforge/internal/provider/runway"
	"github.com/kiranshivaraju/genforge/internal/provider/simulation"
	"github.com/kiranshivaraju/genforge/internal/storage"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/internal/webhook"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// webhookPath is the callback route vendors are told about.
const webhookPath = "/api/webhooks/vendor"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.Env))
	slog.Info("config loaded", "env", cfg.Server.Env, "base_url", cfg.Server.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and apply migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database ready")
	pgStore := store.NewPostgresStore(pool)

	// 3. Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Asset storage
	files, err := storage.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open asset storage: %w", err)
	}
	archiver := storage.NewArchiver(files, &http.Client{Timeout: cfg.Providers.HTTPTimeout})

	// 5. Providers
	registry := newRegistry(cfg, archiver)

	// 6. Orchestrator
	svc := jobs.NewService(pgStore, redisCache, registry, jobs.Config{
		BaseURL:         cfg.Server.BaseURL,
		InitialCredits:  cfg.Jobs.DefaultUserCredits,
		PollInterval:    cfg.Jobs.PollInterval,
		PollMaxAttempts: cfg.Jobs.PollMaxAttempts,
		ProviderTimeout: cfg.Providers.HTTPTimeout,
	})
	if err := svc.Resume(ctx); err != nil {
		return fmt.Errorf("resume jobs: %w", err)
	}

	// 7. Build router with dependencies
	admin, err := mw.NewAdmin(cfg.Admin.Password)
	if err != nil {
		return err
	}
	session := mw.NewSession(cfg.Session.Secret, cfg.Session.TTL, cfg.Jobs.DemoUser(), svc,
		strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	receiver := webhook.NewReceiver(cfg.Webhook.Secret, pgStore, svc, archiver, redisCache)

	router := api.NewRouter(api.Dependencies{
		Session:     session,
		RateLimit:   mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),
		Admin:       admin,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,

		HealthHandler:        healthHandler(pgStore, redisCache),
		WebhookHandler:       handler.NewWebhookHandler(receiver),
		CreateJobHandler:     handler.NewCreateJobHandler(svc),
		GetJobHandler:        handler.NewGetJobHandler(svc),
		ListJobsHandler:      handler.NewListJobsHandler(svc),
		CreditsHandler:       handler.NewCreditsHandler(svc),
		DownloadAssetHandler: handler.NewDownloadAssetHandler(svc, files),
		GrantCreditsHandler:  handler.NewGrantCreditsHandler(svc),
	})

	// 8. Start HTTP server and poller
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.Poller().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	svc.Wait()
	slog.Info("server stopped")
	return nil
}

func newLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "development" {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newRegistry wires every vendor adapter behind the simulation fallback.
func newRegistry(cfg *config.Config, archiver remote.Archiver) *provider.Registry {
	opts := remote.Options{
		HTTPClient: &http.Client{Timeout: cfg.Providers.HTTPTimeout},
		Archiver:   archiver,
	}
	if base := strings.TrimRight(cfg.Server.BaseURL, "/"); base != "" {
		opts.WebhookURL = base + webhookPath
	}

	sim := simulation.New(simulation.WithLatencies(cfg.Providers.Simulation.Latencies()))
	return provider.NewRegistry(cfg.Providers, sim,
		openai.Factory(cfg.Providers.OpenAI, opts),
		meshy.Factory(cfg.Providers.Meshy, opts),
		runway.Factory(cfg.Providers.Runway, opts),
	)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.OK(w, response.Fields{
			"status":   "ok",
			"services": checks,
		})
	}
}
