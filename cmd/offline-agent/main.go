package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roombook/internal/conflict"
	"roombook/internal/offline"
	"roombook/internal/requests/validator"
	"roombook/pkg/client"
	"roombook/pkg/config"
)

const ServiceName = "roombook-offline-agent"

// The offline agent owns the client-resident queue: drafts accumulate in the
// local store while the booking service is unreachable, and every sync
// interval the agent replays eligible entries through the same conflict rule
// the server enforces, submitting the survivors over HTTP.
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	localDB := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	store := offline.NewMongoStore(localDB, cfg.ReadTimeout, cfg.WriteTimeout)

	// One HTTP client backs both contracts: Create submits drafts, FindActive
	// feeds the conflict checker with current server state.
	requestClient := client.NewRequestClient(cfg.BookingServiceURL, cfg.RequestTimeout)
	checker := conflict.NewChecker(requestClient)

	queue := offline.NewQueue(
		store,
		requestClient,
		checker,
		validator.NewBookingValidator(cfg.Log),
		cfg.OfflineMaxAttempts,
		cfg.Log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	cfg.Log.Info("Starting offline sync agent",
		"booking_service_url", cfg.BookingServiceURL,
		"sync_interval", cfg.OfflineSyncInterval,
		"max_attempts", cfg.OfflineMaxAttempts,
	)

	ticker := time.NewTicker(cfg.OfflineSyncInterval)
	defer ticker.Stop()

	runSync(ctx, cfg, queue)
	for {
		select {
		case <-ticker.C:
			runSync(ctx, cfg, queue)
		case sig := <-shutdown:
			cfg.Log.Info("Shutdown signal received", "signal", sig)
			return
		}
	}
}

func runSync(ctx context.Context, cfg *config.Config, queue *offline.Queue) {
	report, err := queue.Sync(ctx)
	if err != nil {
		cfg.Log.Error("Sync pass failed", "error", err)
		return
	}
	if report.Coalesced || report.Processed == 0 {
		return
	}

	cfg.Log.Info("Sync pass settled",
		"processed", report.Processed,
		"synced", report.Synced,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
	)
}
