package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roombook/internal/bulk"
	"roombook/internal/conflict"
	"roombook/internal/requests/repository"
	"roombook/internal/requests/service"
	"roombook/internal/requests/validator"
	"roombook/pkg/config"
)

const ServiceName = "roombook-sweeper"

// The sweeper periodically expires pending requests whose start time has
// passed. Expiry makes the slot available again without notifying anyone;
// each batch runs through the bounded-concurrency runner.
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	store := repository.NewMongoRequestStore(cfg)
	locks := repository.NewMongoSlotLockStore(cfg)
	checker := conflict.NewChecker(store)
	engine := service.NewEngine(store, locks, checker, validator.NewBookingValidator(cfg.Log), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	cfg.Log.Info("Starting expiry sweeper",
		"interval", cfg.ExpireSweepInterval,
		"batch_size", cfg.ExpireSweepBatchSize,
	)

	ticker := time.NewTicker(cfg.ExpireSweepInterval)
	defer ticker.Stop()

	sweep(ctx, cfg, engine)
	for {
		select {
		case <-ticker.C:
			sweep(ctx, cfg, engine)
		case sig := <-shutdown:
			cfg.Log.Info("Shutdown signal received", "signal", sig)
			return
		}
	}
}

func sweep(ctx context.Context, cfg *config.Config, engine *service.Engine) {
	expirable, err := engine.PendingExpirable(ctx, cfg.ExpireSweepBatchSize)
	if err != nil {
		cfg.Log.Error("Failed to list expirable requests", "error", err)
		return
	}
	if len(expirable) == 0 {
		return
	}

	tasks := make([]bulk.Task, len(expirable))
	for i, req := range expirable {
		id := req.ID
		tasks[i] = func(ctx context.Context) (any, error) {
			return engine.Expire(ctx, id)
		}
	}

	runner := bulk.NewRunner(cfg.BulkConcurrency)
	results := runner.Run(ctx, tasks)
	fulfilled, rejected, skipped := bulk.Counts(results)

	cfg.Log.Info("Expiry sweep finished",
		"candidates", len(expirable),
		"expired", fulfilled,
		"failed", rejected,
		"skipped", skipped,
	)

	for _, res := range results {
		if res.Err != nil {
			cfg.Log.Warn("Failed to expire request",
				"id", expirable[res.Index].ID,
				"error", res.Err,
			)
		}
	}
}
