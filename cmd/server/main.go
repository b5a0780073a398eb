// Package main is the entry point for the profileworld server.
//
// main only reads configuration, builds the dependencies and starts the
// server. Everything else lives under internal/.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/profileworld/internal/cache"
	"github.com/sakif/profileworld/internal/config"
	"github.com/sakif/profileworld/internal/metrics"
	"github.com/sakif/profileworld/internal/repository/sqlite"
	"github.com/sakif/profileworld/internal/server"
	"github.com/sakif/profileworld/internal/service"
	"github.com/sakif/profileworld/internal/source"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	// === 1. CONFIGURATION ===
	// MustLoad panics on a bad config; there is nothing to run without one.
	cfg := config.MustLoad(*configPath)

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE ===
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// === 4. GITHUB CLIENT ===
	client, err := source.New(source.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.Timeout,
	})
	if err != nil {
		logger.Error("failed to create GitHub client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("GITHUB_TOKEN not set, unauthenticated rate limits apply")
	}

	// === 5. LATEST-ID INDEX ===
	// Redis is optional. Without it the index lives in process memory.
	var index cache.LatestIndex = cache.NewMemoryIndex()
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if rdb == nil {
			logger.Warn("redis unavailable, using in-memory index", slog.String("addr", cfg.Redis.Addr))
		} else {
			redisIndex := cache.NewRedisIndex(rdb)
			defer redisIndex.Close()
			index = redisIndex
			logger.Info("using redis latest index", slog.String("addr", cfg.Redis.Addr))
		}
	}

	// === 6. SERVICE + SERVER ===
	m := metrics.New()
	worlds := service.NewWorldService(client, db, index, m, logger, service.Options{
		TTL:               cfg.World.TTL,
		EnrichLimit:       cfg.World.EnrichLimit,
		EnrichConcurrency: cfg.World.EnrichConcurrency,
	})

	srv := server.New(server.Config{
		Addr:           cfg.Addr(),
		GenerateBudget: cfg.GenerateBudget(),
		PurgeInterval:  cfg.Purge.Interval,
		PurgeRetention: cfg.Purge.Retention,
	}, worlds, m, logger)

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		db.Close()
		os.Exit(1)
	}
}
