package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/shamba/internal/api"
	"github.com/opensource-finance/shamba/internal/behavior"
	"github.com/opensource-finance/shamba/internal/bus"
	"github.com/opensource-finance/shamba/internal/cache"
	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/repository"
	"github.com/opensource-finance/shamba/internal/satellite"
	"github.com/opensource-finance/shamba/internal/scheduler"
	"github.com/opensource-finance/shamba/internal/scoring"
	"github.com/opensource-finance/shamba/internal/velocity"
	"github.com/opensource-finance/shamba/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP scoring service",
	Action: cmdServe,
}

func cmdServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	slog.Info("starting shamba",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := fraud.NewEngine(domain.ServiceRegion)
	if err != nil {
		return fmt.Errorf("initialize fraud engine: %w", err)
	}
	count, err := engine.LoadFromStore(ctx, repo)
	if err != nil {
		slog.Warn("some fraud rules were not loaded", "error", err)
	}
	slog.Info("fraud engine initialized", "rules_count", count)

	source := satellite.NewCachedSource(satellite.NewPowerClient(cfg.Satellite), cacheImpl, cfg.Satellite.CacheTTL)
	svc := scoring.NewService(
		satellite.NewProvider(source, cfg.Satellite),
		behavior.NewHashProvider(),
		engine,
	)

	limiter := velocity.NewLimiter(cacheImpl, cfg.Velocity)
	slog.Info("velocity limiter initialized",
		"enabled", limiter.Enabled(),
		"max_requests", cfg.Velocity.MaxRequests,
		"window", cfg.Velocity.Window.String(),
	)

	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(ctx); err != nil {
			return fmt.Errorf("start async worker: %w", err)
		}
	}

	sched := scheduler.New(ctx, time.Minute)
	if cfg.Scheduler.RuleReloadCron != "" {
		err := sched.Add("fraud-rule-reload", cfg.Scheduler.RuleReloadCron, func(ctx context.Context) error {
			_, err := engine.LoadFromStore(ctx, repo)
			return err
		})
		if err != nil {
			return err
		}
	}
	sched.Start()

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, svc, engine, limiter, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("shamba is ready",
		"addr", srv.Addr(),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	sched.Stop()
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shamba shutdown complete")
	return serveErr
}
