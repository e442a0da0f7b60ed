package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptrefinery/refinery/internal/api"
	"github.com/promptrefinery/refinery/internal/config"
	"github.com/promptrefinery/refinery/internal/llm"
	"github.com/promptrefinery/refinery/internal/storage"
	"github.com/promptrefinery/refinery/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	key := cfg.Storage.StateKey

	// Simple backend: available from the start, no async setup.
	simple, err := buildSimpleBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up simple backend", "error", err)
		os.Exit(1)
	}

	// Rich backend: best-effort. When it cannot be opened the process
	// runs on the simple backend alone.
	rich := buildRichBackend(ctx, cfg)

	// One-shot migration, before any steady-state writes begin.
	if rich != nil {
		if err := storage.MigrateIfPossible(ctx, simple, rich, key); err != nil {
			slog.Warn("migration skipped", "error", err)
		}
	}

	// The backend that holds data is authoritative for this session;
	// it is resolved here, before the store exists, and never swapped.
	active := simple
	backendName := cfg.Storage.Simple
	if rich != nil {
		if v, err := rich.Get(ctx, key); err == nil && v != nil {
			active = rich
			backendName = cfg.Storage.Rich
		}
	}
	slog.Info("persistence backend resolved", "backend", backendName)

	snap := store.LoadSnapshot(ctx, active, key)
	st := store.New(active, key, snap)

	llmClient := llm.NewClient(cfg.LLM.Timeout)
	router := api.NewRouter(st, llmClient, active, cfg)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	st.Flush()
	slog.Info("server stopped")
}

func buildSimpleBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.Storage.Simple == config.SimpleBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at boot", "addr", cfg.Redis.Addr, "error", err)
		}
		return storage.NewRedisBackend(rdb), nil
	}
	return storage.NewFileBackend(cfg.Storage.DataDir)
}

func buildRichBackend(ctx context.Context, cfg *config.Config) storage.Backend {
	switch cfg.Storage.Rich {
	case config.RichBackendPostgres:
		b, err := storage.OpenPostgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Warn("postgres unavailable, staying on simple backend", "error", err)
			return nil
		}
		return b
	case config.RichBackendSQLite:
		b, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			slog.Warn("sqlite unavailable, staying on simple backend", "error", err)
			return nil
		}
		return b
	default:
		return nil
	}
}
