// Kestrel - Composite bot detection for survey respondents.
// Copyright (c) 2025 opensurvey
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensurvey/kestrel/internal/analysis"
	"github.com/opensurvey/kestrel/internal/api"
	"github.com/opensurvey/kestrel/internal/bus"
	"github.com/opensurvey/kestrel/internal/cache"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/fraud"
	"github.com/opensurvey/kestrel/internal/geo"
	"github.com/opensurvey/kestrel/internal/repository"
	"github.com/opensurvey/kestrel/internal/rules"
	"github.com/opensurvey/kestrel/internal/velocity"
	"github.com/opensurvey/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// A bad weight table must fail here, not mid-analysis.
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"profile_version", cfg.Scoring.Profile.Version,
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

	// Initialize geolocation resolver
	resolver, err := buildGeoResolver(cacheImpl)
	if err != nil {
		slog.Error("failed to initialize geo resolver", "error", err)
		os.Exit(1)
	}
	if resolver == nil {
		slog.Warn("no geo table configured, geolocation checks disabled")
	}

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Flag Rule Engine with velocity getter
	engine, err := rules.NewEngine(velocitySvc.GetVelocityGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize flag rule engine", "error", err)
		os.Exit(1)
	}

	tenantIDs := parseTenants(os.Getenv("KESTREL_TENANTS"))

	// Builtins always load; tenant rules come from the database and can
	// be hot-reloaded via POST /flag-rules/reload.
	if err := loadFlagRules(ctx, repo, engine, tenantIDs); err != nil {
		slog.Error("failed to load flag rules", "error", err)
		os.Exit(1)
	}
	slog.Info("flag rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Fraud Calculator
	var geoResolver fraud.GeoResolver
	if resolver != nil {
		geoResolver = resolver
	}
	calculator, err := fraud.NewCalculator(cfg.Fraud, repo, geoResolver, logger)
	if err != nil {
		slog.Error("failed to initialize fraud calculator", "error", err)
		os.Exit(1)
	}
	slog.Info("fraud calculator initialized")

	// Initialize Composite Scorer
	scorer, err := composite.NewScorer(cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize composite scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("composite scorer initialized",
		"profile_version", cfg.Scoring.Profile.Version,
		"bot_threshold", cfg.Scoring.BotThreshold,
	)

	// Initialize Analyzer (the shared analysis pipeline)
	analyzer, err := analysis.NewAnalyzer(analysis.Deps{
		Repo:             repo,
		Bus:              busImpl,
		Fraud:            calculator,
		Scorer:           scorer,
		Rules:            engine,
		Velocity:         velocitySvc,
		Geo:              resolver,
		CollectorTimeout: 5 * time.Second,
		Logger:           logger,
	})
	if err != nil {
		slog.Error("failed to initialize analyzer", "error", err)
		os.Exit(1)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, analyzer)

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, analyzer, scorer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// buildGeoResolver loads the CIDR table named by KESTREL_GEO_TABLE and
// wraps it with the shared cache. Returns nil when no table is
// configured; geolocation checks then degrade to consistent-by-default.
func buildGeoResolver(cacheImpl domain.Cache) (geo.Resolver, error) {
	path := os.Getenv("KESTREL_GEO_TABLE")
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geo table: %w", err)
	}

	table, err := geo.LoadTable(data)
	if err != nil {
		return nil, err
	}

	static, err := geo.NewStaticResolver(table)
	if err != nil {
		return nil, err
	}

	slog.Info("geo resolver initialized", "prefixes", len(table))
	return geo.NewCachedResolver(static, cacheImpl, 24*time.Hour), nil
}

// loadFlagRules loads builtin rules plus each configured tenant's
// stored rules into the engine.
func loadFlagRules(ctx context.Context, repo domain.Repository, engine *rules.Engine, tenantIDs []string) error {
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		return err
	}

	for _, tenantID := range tenantIDs {
		dbRules, err := repo.ListFlagRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list flag rules for tenant",
				"tenant_id", tenantID, "error", err)
			continue
		}
		if len(dbRules) > 0 {
			slog.Info("loading flag rules from database",
				"tenant_id", tenantID, "count", len(dbRules))
			if err := engine.LoadRules(dbRules); err != nil {
				return err
			}
		}
	}

	return nil
}

func parseTenants(env string) []string {
	if env == "" {
		return nil
	}
	var tenants []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Survey Bot Detection Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze              - Analyze a survey session")
	fmt.Println("    GET  /verdicts/{id}        - Get verdict by ID")
	fmt.Println("    GET  /sessions/{id}        - Get session by ID")
	fmt.Println("    GET  /sessions/{id}/fraud  - Get fraud indicator history")
	fmt.Println("    GET  /profile              - Get the scoring weight profile")
	fmt.Println("    GET  /flag-rules           - List flag rules")
	fmt.Println("    POST /flag-rules           - Create a flag rule")
	fmt.Println("    POST /flag-rules/reload    - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
