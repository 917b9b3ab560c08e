package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "roombook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultBookingServiceURL = "http://localhost:8080"

	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultBulkConcurrency = 5

	DefaultOfflineMaxAttempts  = 3
	DefaultOfflineSyncInterval = 30 * time.Second

	DefaultExpireSweepInterval  = 5 * time.Minute
	DefaultExpireSweepBatchSize = 100

	DefaultNotificationsTopic    = "roombook.notifications"
	DefaultNotificationsDLQTopic = "roombook.notifications.dlq"
	DefaultNotificationsGroupID  = "roombook-notifier"

	DefaultPaginationLimit = 100
)
