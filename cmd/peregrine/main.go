// Peregrine - Real-time transaction risk decisions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/peregrine/internal/advisor"
	"github.com/opensource-finance/peregrine/internal/api"
	"github.com/opensource-finance/peregrine/internal/bus"
	"github.com/opensource-finance/peregrine/internal/cache"
	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/decision"
	"github.com/opensource-finance/peregrine/internal/dispatch"
	"github.com/opensource-finance/peregrine/internal/engine"
	"github.com/opensource-finance/peregrine/internal/history"
	"github.com/opensource-finance/peregrine/internal/modelscore"
	"github.com/opensource-finance/peregrine/internal/perception"
	"github.com/opensource-finance/peregrine/internal/planner"
	"github.com/opensource-finance/peregrine/internal/repository"
	"github.com/opensource-finance/peregrine/internal/rules"
	"github.com/opensource-finance/peregrine/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration first so debug logging covers startup
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting peregrine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"block_threshold", cfg.Engine.BlockThreshold,
		"challenge_threshold", cfg.Engine.ChallengeThreshold,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// History view over the repository with cached hot lookups
	historyView := history.NewView(repo, cacheImpl)

	// Perception
	perceiver := perception.NewPerceiver(historyView, cfg.Engine.VelocityWindow)

	// Optional CEL boost rules with hot reload
	var boosts *rules.BoostEngine
	var stopWatch func()
	if cfg.BoostRulesPath != "" {
		boosts, err = rules.NewBoostEngine()
		if err != nil {
			slog.Error("failed to initialize boost engine", "error", err)
			os.Exit(1)
		}
		if err := rules.LoadBoosts(boosts, cfg.BoostRulesPath); err != nil {
			slog.Error("failed to load boost rules", "path", cfg.BoostRulesPath, "error", err)
			os.Exit(1)
		}
		stopWatch, err = rules.WatchBoosts(boosts, cfg.BoostRulesPath)
		if err != nil {
			slog.Warn("boost hot-reload unavailable", "error", err)
		} else {
			defer stopWatch()
		}
		slog.Info("boost rules loaded",
			"path", cfg.BoostRulesPath,
			"count", boosts.Count(),
		)
	}

	// Rule scorer
	scorer := rules.NewScorer(historyView.MerchantBlacklisted, boosts)

	// Risk advisor
	adv := advisor.New(cfg.Advisor)
	slog.Info("risk advisor initialized",
		"enabled", cfg.Advisor.Enabled,
		"provider", cfg.Advisor.Provider,
	)

	// Classifier
	classifier, err := decision.NewClassifier(cfg.Engine.BlockThreshold, cfg.Engine.ChallengeThreshold)
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}

	// Optional workflow planner
	var pl planner.Planner
	if cfg.Planner.Enabled {
		pl = planner.NewStaticPlanner()
		slog.Info("workflow planner enabled")
	}

	// Dispatcher
	dispatcher := dispatch.NewDispatcher(repo, busImpl, cfg.Topics)

	// Decision engine
	eng := engine.New(perceiver, scorer, adv, pl, classifier, dispatcher, repo)

	// Model score service
	scores := modelscore.NewService(repo)

	// Async worker consuming the transactions topic
	asyncWorker := worker.NewWorker(busImpl, eng, cfg.Topics)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP server
	handler := api.NewHandler(repo, cacheImpl, busImpl, eng, scores, boosts, cfg.BoostRulesPath, cfg.Topics, Version)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("peregrine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the worker before the bus closes
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("peregrine shutdown complete")
}

func printBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               PEREGRINE                   |")
	fmt.Println("  |   Transaction Risk Decision Engine        |")
	fmt.Println("  |   Fast decisions on every transaction.    |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /ingest              - Queue a transaction event")
	fmt.Println("    POST /evaluate            - Evaluate an event synchronously")
	fmt.Println("    GET  /decisions/{eventID} - Get decision for an event")
	fmt.Println("    POST /blacklist           - Manage merchant block rules")
	fmt.Println("    POST /score/model         - Run model inference")
	fmt.Println("    POST /score/combine       - Blend model and rule scores")
	fmt.Println("    POST /boosts/reload       - Hot-reload boost rules")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}
