// Package config provides centralized configuration management for the
// loader. It reads environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all loader configuration.
// All settings can be configured via environment variables.
type Config struct {
	Salesforce SalesforceConfig
	Load       LoadConfig
	Staging    StagingConfig
	Database   DatabaseConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

// SalesforceConfig holds the caller-owned session handle for the remote
// bulk service. Login/session establishment happens outside this process.
type SalesforceConfig struct {
	// InstanceURL is the org instance, e.g. https://na1.salesforce.com (required)
	InstanceURL string `env:"SF_INSTANCE_URL" required:"true"`

	// SessionID is the session token obtained at login (required)
	SessionID string `env:"SF_SESSION_ID" required:"true"`

	// APIVersion selects the async API version (default: 45.0)
	APIVersion string `env:"SF_API_VERSION" default:"45.0"`

	// RequestTimeout is the per-request HTTP timeout (default: 30s)
	RequestTimeout time.Duration `env:"SF_REQUEST_TIMEOUT" default:"30s"`

	// RateLimit is the request rate toward the org, per second (default: 10)
	RateLimit float64 `env:"SF_RATE_LIMIT" default:"10"`
}

// LoadConfig holds the chunking and run tunables.
type LoadConfig struct {
	// Object is the target object type, e.g. Account (required)
	Object string `env:"LOAD_OBJECT" required:"true"`

	// Operation is the bulk operation kind (default: insert)
	Operation string `env:"LOAD_OPERATION" default:"insert"`

	// MaxBatchBytes bounds the serialized size of one batch (default: 10000000)
	MaxBatchBytes int `env:"LOAD_MAX_BATCH_BYTES" default:"10000000"`

	// MaxBatchRows bounds the data rows of one batch (default: 10000)
	MaxBatchRows int `env:"LOAD_MAX_BATCH_ROWS" default:"10000"`

	// Workers bounds parallel batch submission/reconciliation (default: 4)
	Workers int `env:"LOAD_WORKERS" default:"4"`

	// PollInterval is the delay between batch status cycles (default: 10s)
	PollInterval time.Duration `env:"LOAD_POLL_INTERVAL" default:"10s"`

	// MaxWait bounds the completion wait; 0 waits forever (default: 0)
	MaxWait time.Duration `env:"LOAD_MAX_WAIT" default:"0s"`
}

// StagingConfig holds chunk staging settings.
type StagingConfig struct {
	// Provider selects the staging backend: memory, file or object (default: file)
	Provider string `env:"STAGING_PROVIDER" default:"file"`

	// Dir is the temp-file staging directory (default: OS temp dir)
	Dir string `env:"STAGING_DIR"`

	// ObjectThresholdBytes forces object staging above this estimated
	// dataset size (default: 268435456)
	ObjectThresholdBytes int64 `env:"STAGING_OBJECT_THRESHOLD" default:"268435456"`

	// MinIO object store settings, required only for the object provider.
	MinIOEndpoint  string `env:"STAGING_MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"STAGING_MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"STAGING_MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"STAGING_MINIO_BUCKET"`
	MinIOUseSSL    bool   `env:"STAGING_MINIO_USE_SSL" default:"false"`
}

// DatabaseConfig holds optional report persistence settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables persistence
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 8)
	MaxConns int `env:"DB_MAX_CONNS" default:"8"`
}

// ServerConfig holds the optional status HTTP server settings.
type ServerConfig struct {
	// Enabled starts the status server when true (default: false)
	Enabled bool `env:"STATUS_SERVER_ENABLED" default:"false"`

	// Addr is the listen address (default: 127.0.0.1:8090)
	Addr string `env:"STATUS_SERVER_ADDR" default:"127.0.0.1:8090"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
