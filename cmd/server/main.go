package main

import (
	"roombook/internal/conflict"
	"roombook/internal/notify"
	"roombook/internal/requests/handler"
	"roombook/internal/requests/repository"
	"roombook/internal/requests/service"
	"roombook/internal/requests/validator"
	"roombook/pkg/app"
	"roombook/pkg/config"
	"roombook/pkg/contracts"
	"roombook/pkg/kafka"
	kafka_config "roombook/pkg/kafka/config"
	kafka_middleware "roombook/pkg/kafka/middleware"

	"github.com/julienschmidt/httprouter"
)

const ServiceName = "roombook-api"

// apiHandler registers every API surface on one router.
type apiHandler struct {
	handlers []contracts.Handler
}

func (h *apiHandler) RegisterRoutes(router *httprouter.Router) {
	for _, hd := range h.handlers {
		hd.RegisterRoutes(router)
	}
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting roombook API service")

	producer := initProducer(cfg)
	defer func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	}()

	notifyService := notify.NewService(notify.NewMongoNotificationStore(cfg), producer, cfg.Log)
	engine := initEngine(cfg, notifyService)

	api := &apiHandler{
		handlers: []contracts.Handler{
			handler.NewBookingHandler(engine, cfg.Log),
			handler.NewBulkHandler(engine, cfg.BulkConcurrency, cfg.Log),
			notify.NewNotificationHandler(notifyService, cfg.Log),
		},
	}

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, api)
	serverApp.Run()
}

func initEngine(cfg *config.Config, notifier notify.Dispatcher) *service.Engine {
	store := repository.NewMongoRequestStore(cfg)
	locks := repository.NewMongoSlotLockStore(cfg)
	checker := conflict.NewChecker(store)
	engine := service.NewEngine(store, locks, checker, validator.NewBookingValidator(cfg.Log), notifier, cfg)

	cfg.Log.Info("Lifecycle engine initialized", "database", cfg.MongoDatabaseName)
	return engine
}

func initProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.NotificationsTopic, cfg.NotificationsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafka_middleware.MetricsProducerMiddleware())
	}

	cfg.Log.Info("Notification producer initialized", "topic", cfg.NotificationsTopic)
	return producer
}
