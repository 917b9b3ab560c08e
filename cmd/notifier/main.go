package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"roombook/internal/notify"
	"roombook/pkg/config"
	"roombook/pkg/kafka"
	kafka_config "roombook/pkg/kafka/config"
	kafka_middleware "roombook/pkg/kafka/middleware"
)

const ServiceName = "roombook-notifier"

// The notifier drains the notifications topic and hands each event to the
// delivery channel (currently the structured log; push/email transports hang
// off the same handler). Poisonous events end up on the DLQ after the
// consumer's bounded retries.
func main() {
	cfg := config.Load(ServiceName)

	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.NotificationsTopic,
		cfg.NotificationsGroupID,
		cfg.NotificationsDLQTopic,
		deliverNotification(cfg),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	}

	ctx, cancel := context.WithCancel(context.Background())
	consumerErrors := make(chan error, 1)
	go func() {
		cfg.Log.Info("Starting notification consumer",
			"topic", cfg.NotificationsTopic,
			"group_id", cfg.NotificationsGroupID,
		)
		consumerErrors <- consumer.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		if err != nil {
			cfg.Log.Error("Consumer stopped with error", "error", err)
		}
	case sig := <-shutdown:
		cfg.Log.Info("Shutdown signal received", "signal", sig)
	}

	cancel()
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	cfg.Log.Info("Notifier stopped gracefully")
}

func deliverNotification(cfg *config.Config) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event notify.NotificationEvent
		if err := msg.DecodeValue(&event); err != nil {
			// Undecodable payloads will never succeed; let the DLQ have them.
			return kafka.NewPermanentError("failed to decode notification event", err)
		}

		cfg.Log.Info("Notification delivered",
			"event_id", msg.GetEventID(),
			"notification_id", event.NotificationID,
			"user_id", event.UserID,
			"type", event.Type,
			"booking_request_id", event.BookingRequestID,
		)
		return nil
	}
}
