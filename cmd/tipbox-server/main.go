package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marcus/tipbox/internal/api"
	"github.com/marcus/tipbox/internal/favcache"
	"github.com/marcus/tipbox/internal/serverdb"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()
	slog.SetDefault(slog.New(newLogHandler(cfg)))

	store, err := serverdb.Open(cfg.ServerDBPath)
	if err != nil {
		slog.Error("open server db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	cache, closeCache := openCache(cfg)
	defer closeCache()

	srv, err := api.NewServer(cfg, store, cache)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", cfg.ListenAddr, "cache", cache != nil)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func newLogHandler(cfg api.Config) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

// openCache connects the Redis favorites cache when one is configured. An
// unreachable Redis is logged and the server runs without a cache.
func openCache(cfg api.Config) (*favcache.Cache, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}
	backend := favcache.NewGoRedisBackend(cfg.RedisAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := backend.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, favorites cache disabled", "addr", cfg.RedisAddr, "err", err)
		backend.Close()
		return nil, func() {}
	}
	slog.Info("favorites cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	return favcache.New(backend, cfg.CacheTTL, slog.Default()), func() { backend.Close() }
}
