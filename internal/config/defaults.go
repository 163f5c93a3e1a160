package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort        = 8080
	DefaultServerMode        = "release"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 90 * time.Second
	DefaultMaxBodySize       = 1 << 20
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultRateLimitRPS      = 2.0
	DefaultRateLimitBurst    = 5
	DefaultUpstreamURL       = "https://health.api.nvidia.com/v1/biology/nvidia/molmim/generate"
	DefaultUpstreamTimeout   = 60 * time.Second
	DefaultAuthIssuer        = "molforge"
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "molforge"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 10
	DefaultRedisHistoryTTL   = 10 * time.Minute
	DefaultRedisKeyPrefix    = "molforge:"
	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaGroupID      = "molforge-worker"
	DefaultKafkaMaxRetries   = 3
	DefaultKafkaRetryBackoff = time.Second
	DefaultKafkaDLQTopic     = "molforge.generation.history.created.dlq"
	DefaultKafkaWriteTimeout = 10 * time.Second
	DefaultKafkaPartitions   = 3
	DefaultKafkaReplication  = 1
	DefaultMinIOEndpoint     = "localhost:9000"
	DefaultMinIOBucket       = "molforge-history"
	DefaultMinIORegion       = "us-east-1"
	DefaultPresignExpiry     = time.Hour
	DefaultMetricsNamespace  = "molforge"
	DefaultMetricsPath       = "/metrics"
	DefaultWorkerHealthPort  = 8081
	DefaultHandlerTimeout    = 2 * time.Minute
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
)

// ApplyDefaults fills zero-value fields in cfg.  Explicitly set values are
// left untouched.  Booleans cannot be told apart from "unset" here; their
// defaults are registered with viper by registerDefaults instead.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	// ── Upstream ──────────────────────────────────────────────────────────────
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = DefaultUpstreamURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = DefaultAuthIssuer
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.HistoryTTL == 0 {
		cfg.Redis.HistoryTTL = DefaultRedisHistoryTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDLQTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.TopicPartitions == 0 {
		cfg.Kafka.TopicPartitions = DefaultKafkaPartitions
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = DefaultKafkaReplication
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultPresignExpiry
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = DefaultHandlerTimeout
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// registerDefaults seeds viper with every known key.  Besides supplying
// boolean defaults, this makes AutomaticEnv resolve MOLFORGE_* variables for
// keys that never appear in a config file.
func registerDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"server.port":                           DefaultServerPort,
		"server.mode":                           DefaultServerMode,
		"server.read_timeout":                   DefaultReadTimeout,
		"server.write_timeout":                  DefaultWriteTimeout,
		"server.max_body_size":                  DefaultMaxBodySize,
		"server.shutdown_timeout":               DefaultShutdownTimeout,
		"server.rate_limit.enabled":             true,
		"server.rate_limit.requests_per_second": DefaultRateLimitRPS,
		"server.rate_limit.burst":               DefaultRateLimitBurst,
		"server.allowed_origins":                []string{},
		"upstream.url":                          DefaultUpstreamURL,
		"upstream.api_key":                      "",
		"upstream.timeout":                      DefaultUpstreamTimeout,
		"auth.enabled":                          true,
		"auth.jwt_secret":                       "",
		"auth.issuer":                           DefaultAuthIssuer,
		"database.host":                         DefaultDBHost,
		"database.port":                         DefaultDBPort,
		"database.user":                         "",
		"database.password":                     "",
		"database.db_name":                      DefaultDBName,
		"database.ssl_mode":                     DefaultDBSSLMode,
		"database.max_open_conns":               DefaultDBMaxOpenConns,
		"database.max_idle_conns":               DefaultDBMaxIdleConns,
		"database.conn_max_lifetime":            DefaultDBConnMaxLifetime,
		"database.auto_migrate":                 true,
		"redis.enabled":                         false,
		"redis.addr":                            DefaultRedisAddr,
		"redis.password":                        "",
		"redis.db":                              0,
		"redis.pool_size":                       DefaultRedisPoolSize,
		"redis.history_ttl":                     DefaultRedisHistoryTTL,
		"redis.key_prefix":                      DefaultRedisKeyPrefix,
		"kafka.enabled":                         false,
		"kafka.brokers":                         []string{DefaultKafkaBroker},
		"kafka.group_id":                        DefaultKafkaGroupID,
		"kafka.auto_offset_reset":               "earliest",
		"kafka.max_retries":                     DefaultKafkaMaxRetries,
		"kafka.retry_backoff":                   DefaultKafkaRetryBackoff,
		"kafka.dead_letter_topic":               DefaultKafkaDLQTopic,
		"kafka.write_timeout":                   DefaultKafkaWriteTimeout,
		"kafka.topic_partitions":                DefaultKafkaPartitions,
		"kafka.replication_factor":              DefaultKafkaReplication,
		"kafka.sasl_mechanism":                  "",
		"kafka.sasl_username":                   "",
		"kafka.sasl_password":                   "",
		"minio.enabled":                         false,
		"minio.endpoint":                        DefaultMinIOEndpoint,
		"minio.access_key":                      "",
		"minio.secret_key":                      "",
		"minio.bucket":                          DefaultMinIOBucket,
		"minio.region":                          DefaultMinIORegion,
		"minio.use_ssl":                         false,
		"minio.presign_expiry":                  DefaultPresignExpiry,
		"minio.retention_days":                  0,
		"metrics.enabled":                       true,
		"metrics.namespace":                     DefaultMetricsNamespace,
		"metrics.path":                          DefaultMetricsPath,
		"sentry.dsn":                            "",
		"sentry.environment":                    "",
		"sentry.traces_sample_rate":             0.0,
		"worker.health_port":                    DefaultWorkerHealthPort,
		"worker.handler_timeout":                DefaultHandlerTimeout,
		"log.level":                             DefaultLogLevel,
		"log.format":                            DefaultLogFormat,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
