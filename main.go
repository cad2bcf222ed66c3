package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quirze62/nodus/internal/cache"
	"github.com/quirze62/nodus/internal/client"
	"github.com/quirze62/nodus/internal/config"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	InitLogger(cfg.LogLevel)

	privateKey := cfg.PrivateKey
	if privateKey == "" {
		privBytes, err := nostr.GeneratePrivateKey()
		if err != nil {
			slog.Error("failed to generate ephemeral key", "error", err)
			os.Exit(1)
		}
		privateKey = hex.EncodeToString(privBytes)
		slog.Warn("no private key configured, generated an ephemeral one; published events will be unrecoverable after restart")
	}

	backend, backendType := buildCacheBackend(cfg)
	defer backend.Close()

	c, err := client.New(privateKey, client.Options{
		ReadRelays:     cfg.ReadRelays,
		WriteRelays:    cfg.WriteRelays,
		IndexerRelays:  cfg.IndexerRelays,
		Backend:        backend,
		UseNip44ForDMs: cfg.DMNip44,
	})
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	c.Start()

	store := storage.NewStore()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(c, store, backendType),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server listening",
			"addr", cfg.ListenAddr,
			"pubkey", nostr.ShortID(c.PublicKey()),
			"read_relays", len(cfg.ReadRelays),
			"write_relays", len(cfg.WriteRelays),
			"cache_backend", backendType)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// buildCacheBackend picks Redis when configured, memory otherwise.
// A failed Redis connection falls back to memory so the client still
// starts, just without a shared cache.
func buildCacheBackend(cfg *config.Config) (cache.Backend, string) {
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "nodus")
		if err != nil {
			slog.Warn("redis unavailable, falling back to memory cache", "error", err)
		} else {
			return redisCache, "redis"
		}
	}
	return cache.NewMemoryCache(10000, time.Minute), "memory"
}
