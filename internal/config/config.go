// Package config loads the service configuration from environment variables
// with defaults, and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"
)

// SQLitePrefix marks a DATABASE_URL that selects the embedded SQLite store.
const SQLitePrefix = "sqlite:"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ingest    IngestConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Retention RetentionConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8000"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"3m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds read-only requests; ingestion uses Ingest.Timeout.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// URL is a PostgreSQL connection string, or "sqlite:<path>" for the
	// embedded store. DB_URL is accepted for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending schema migrations on server start.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// IsSQLite reports whether URL selects the embedded SQLite store.
func (c DatabaseConfig) IsSQLite() bool {
	return strings.HasPrefix(c.URL, SQLitePrefix)
}

// SQLitePath returns the database path of a sqlite: URL.
func (c DatabaseConfig) SQLitePath() string {
	return strings.TrimPrefix(c.URL, SQLitePrefix)
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	// MaxConcurrent is the number of batches processed at once.
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a batch waits for a free slot before 429.
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"10s"`

	// Timeout bounds one batch transaction.
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"2m"`

	// MaxBodySize is the largest accepted request body in bytes (default: 32MB).
	MaxBodySize int64 `env:"INGEST_MAX_BODY_SIZE" default:"33554432"`

	// Location is the IANA zone that defines calendar days for stats and
	// date filters.
	Location string `env:"INGEST_TIMEZONE" default:"Local"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// IngestLimit is requests per minute for the ingestion endpoint.
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For / X-Real-IP headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig controls the scheduled cleanup of old assemblies.
type RetentionConfig struct {
	Enabled       bool          `env:"RETENTION_ENABLED" default:"false"`
	Days          int           `env:"RETENTION_DAYS" default:"30"`
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"24h"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LoadLocation resolves Ingest.Location.
func (c *IngestConfig) LoadLocation() (*time.Location, error) {
	if c.Location == "" || strings.EqualFold(c.Location, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}
