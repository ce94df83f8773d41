package config

import "time"

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "vaxslot"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultStoreBackend      = StoreMongo

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultLedgerMaxAttempts    = 3
	DefaultLedgerBackoffInitial = 20 * time.Millisecond
	DefaultLedgerBackoffMax     = 200 * time.Millisecond

	DefaultJWTIssuer = "vaxslot"
	DefaultJWTTTL    = 12 * time.Hour

	// Development keys. Deployments must override both.
	DefaultCredentialKey = "8Qn3m0bTq1YkQy3Yp6mJcJm3k0s0cR9bYVxgk1H0W2E="
	DefaultSealerKey     = "lfQVRuulcL2iOhOJ2r8BYTweoSKwVAJnIF9U+AL+M60="

	DefaultVerificationBaseURL = "http://localhost:8080"
	DefaultQRSize              = 256

	DefaultEventsEnabled  = false
	DefaultEventsTopic    = "appointments.lifecycle"
	DefaultEventsDLQTopic = "dlq-appointments"
)
