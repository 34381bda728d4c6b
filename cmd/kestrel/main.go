// Kestrel - Ensemble fraud scoring for payment transactions.
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
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/detector"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/telemetry"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := domain.LoadConfig(os.Getenv)

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"ensemble", cfg.Detection.EnsembleProfile,
		"workers", cfg.Detection.Workers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

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
	if local, ok := cacheImpl.(interface{ Stats() cache.Stats }); ok {
		if err := metrics.WatchCache(func() (int, int) {
			st := local.Stats()
			return st.Entries, st.Capacity
		}); err != nil {
			slog.Warn("failed to export cache metrics", "error", err)
		}
	}

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize indicator engine; stored indicators extend the built-ins
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize indicator engine", "error", err)
		os.Exit(1)
	}
	custom, err := engine.LoadFrom(ctx, repo)
	if err != nil {
		slog.Warn("failed to load stored indicators, using built-ins only", "error", err)
	}
	metrics.LoadedIndicators.Set(float64(engine.Count()))
	slog.Info("indicator engine initialized",
		"indicators", engine.Count(),
		"custom", custom,
	)

	det, err := newDetector(cfg.Detection, engine)
	if err != nil {
		slog.Error("failed to initialize detector", "error", err)
		os.Exit(1)
	}
	slog.Info("detector initialized",
		"models", len(det.Members()),
		"uncertainty", det.Uncertainty(),
		"workers", det.Workers(),
		"seeded", cfg.Detection.Seed != 0,
	)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, det)
		workerCfg := worker.Config{TenantIDs: cfg.WorkerTenants}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "subscriptions", asyncWorker.SubscriptionCount())
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Scorer:         det,
		Engine:         engine,
		Repository:     repo,
		Cache:          cacheImpl,
		Bus:            busImpl,
		RateLimit:      cfg.Detection.RateLimit,
		IdempotencyTTL: cfg.Detection.IdempotencyTTL,
	}, Version)

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

	<-ctx.Done()
	slog.Info("shutting down...")

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
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newDetector(cfg domain.DetectionConfig, engine *rules.Engine) (*detector.Detector, error) {
	members, err := ensemble.Profile(cfg.EnsembleProfile)
	if err != nil {
		return nil, err
	}
	sim, err := ensemble.New(members, ensemble.WithUncertainty(cfg.UncertaintyAmplitude))
	if err != nil {
		return nil, err
	}

	opts := []detector.Option{
		detector.WithWorkers(cfg.Workers),
		detector.WithObserver(metrics.NewRecorder()),
	}
	if cfg.Seed != 0 {
		opts = append(opts, detector.WithSource(ensemble.NewSource(cfg.Seed)))
	}
	return detector.New(sim, decision.NewPolicy(engine), opts...)
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL  ensemble fraud scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /detect-fraud         - Score a transaction")
	fmt.Println("    POST   /detect-fraud/batch   - Score up to 100 transactions")
	fmt.Println("    GET    /models               - Ensemble members and weights")
	fmt.Println("    GET    /indicators           - List risk indicators")
	fmt.Println("    POST   /indicators           - Create a custom indicator")
	fmt.Println("    DELETE /indicators/{id}      - Remove a custom indicator")
	fmt.Println("    POST   /indicators/reload    - Hot-reload stored indicators")
	fmt.Println("    GET    /health               - Health check")
	fmt.Println("    GET    /metrics              - Prometheus metrics")
	fmt.Println()
}
