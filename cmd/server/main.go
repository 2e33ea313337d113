// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package main is the SoundLedger server entry point.
//
// SoundLedger synchronizes listening history from a music streaming service
// into a local DuckDB ledger and serves per-user statistics over HTTP.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, yaml file, environment)
//  2. Logging (zerolog)
//  3. Database (DuckDB, schema creation)
//  4. Fix-at-start: orphaned running jobs are marked failed
//  5. Cache consistency check
//  6. Supervisor tree: sync scheduler worker and HTTP server
//
// Shutdown on SIGINT/SIGTERM drains in-flight requests within the configured
// timeout, stops the scheduler, then closes the database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/soundledger/internal/api"
	"github.com/tomtom215/soundledger/internal/blacklist"
	"github.com/tomtom215/soundledger/internal/cache"
	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/database"
	"github.com/tomtom215/soundledger/internal/importfile"
	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/stats"
	"github.com/tomtom215/soundledger/internal/supervisor"
	syncpkg "github.com/tomtom215/soundledger/internal/sync"
)

// statsCacheTTL bounds staleness for answers that miss an invalidation.
const statsCacheTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("users", len(cfg.Sync.Users)).
		Bool("offline_mode", cfg.Preferences().OfflineMode).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	statsCache := cache.New(statsCacheTTL)
	defer statsCache.Close()

	engine := stats.NewEngine(db, statsCache)
	blacklistMgr := blacklist.NewManager(db, statsCache, cfg)
	sourceClient := syncpkg.NewHTTPSourceClient(&cfg.Source)
	syncMgr := syncpkg.NewManager(db, sourceClient, engine, cfg)
	fileImporter := importfile.NewImporter(db, engine, cfg)

	// Fix-at-start: a running job without a live process is an orphan.
	if err := syncMgr.ResumeOrphaned(startupCtx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to recover orphaned import jobs")
	}
	if err := blacklistMgr.CheckConsistency(startupCtx); err != nil {
		logging.Fatal().Err(err).Msg("Blacklist consistency check failed")
	}

	handler := api.NewHandler(engine, syncMgr, fileImporter, blacklistMgr, db, cfg, db)
	router := api.NewRouter(handler, cfg, &cfg.Server)

	scheduler := syncpkg.NewScheduler(
		syncMgr,
		syncpkg.NewStaticUserDirectory(cfg.Sync.Users),
		cfg,
		&cfg.Sync,
	)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddWorker(scheduler)
	tree.AddAPI(supervisor.NewHTTPService(&cfg.Server, router))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting SoundLedger")
	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("SoundLedger stopped")
}
