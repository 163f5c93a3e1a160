// Package config defines the configuration structures for MolForge.  No I/O
// or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	Mode            string          `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	MaxBodySize     int64           `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`

	// AllowedOrigins lists browser origins granted CORS access.  Empty
	// disables CORS headers.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig throttles the generation proxy per client.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// UpstreamConfig points at the external molecule generation service.
type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds bearer-token validation parameters.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the connection URL understood by pgx and golang-migrate.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// RedisConfig holds Redis connection parameters for the history cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	HistoryTTL   time.Duration `mapstructure:"history_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds event producer/consumer parameters.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`

	// Topic provisioning performed by the apiserver on startup.
	TopicPartitions   int `mapstructure:"topic_partitions"`
	ReplicationFactor int `mapstructure:"replication_factor"`

	// SASLMechanism is empty (no auth), "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// MinIOConfig holds object-storage parameters for history archives.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`

	// RetentionDays expires archived objects after the given number of days.
	// Zero keeps them forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	HealthPort     int           `mapstructure:"health_port"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure shared by apiserver and worker.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Upstream UpstreamConfig    `mapstructure:"upstream"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Sentry   SentryConfig      `mapstructure:"sentry"`
	Worker   WorkerConfig      `mapstructure:"worker"`
	Log      logging.LogConfig `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a defaulted Config and returns
// the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.Burst < 1) {
		return fmt.Errorf("config: server.rate_limit requires requests_per_second > 0 and burst >= 1")
	}

	u, err := url.Parse(c.Upstream.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: upstream.url %q is not an absolute URL", c.Upstream.URL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("config: upstream.timeout must be positive")
	}

	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters when auth is enabled")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
		switch c.Kafka.AutoOffsetReset {
		case "earliest", "latest":
		default:
			return fmt.Errorf("config: kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
		}
		switch c.Kafka.SASLMechanism {
		case "":
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
			if c.Kafka.SASLUsername == "" || c.Kafka.SASLPassword == "" {
				return fmt.Errorf("config: kafka.sasl_username and kafka.sasl_password are required with SASL")
			}
		default:
			return fmt.Errorf("config: kafka.sasl_mechanism %q is invalid; expected PLAIN|SCRAM-SHA-256|SCRAM-SHA-512", c.Kafka.SASLMechanism)
		}
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
		}
		if c.MinIO.RetentionDays < 0 {
			return fmt.Errorf("config: minio.retention_days must be >= 0, got %d", c.MinIO.RetentionDays)
		}
	}

	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		return fmt.Errorf("config: sentry.traces_sample_rate must be within [0, 1]")
	}

	if _, err := logging.ParseLevel(string(c.Log.Level)); err != nil {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
