// Command apiserver serves the MolForge HTTP API: the generation proxy, the
// history API, health probes and metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/turtacn/MolForge/internal/application/history"
	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/database/postgres"
	"github.com/turtacn/MolForge/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/MolForge/internal/infrastructure/database/redis"
	"github.com/turtacn/MolForge/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/infrastructure/storage/minio"
	"github.com/turtacn/MolForge/internal/infrastructure/upstream/molmim"
	httpserver "github.com/turtacn/MolForge/internal/interfaces/http"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MOLFORGE_CONFIG"), "path to configuration file (default: environment only)")
	flag.Parse()

	cfg, err := config.LoadAuto(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("apiserver stopped with error", logging.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting MolForge API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.Int("port", cfg.Server.Port))

	sentryEnabled, err := initSentry(cfg.Sentry)
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	if configPath != "" {
		watchConfig(configPath, logger)
	}

	collector, metrics, err := initMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}

	infra, err := initInfrastructure(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc := history.NewService(history.Deps{
		Repo:      repositories.NewPostgresHistoryRepo(infra.pg, logger),
		Cache:     infra.cache,
		CacheTTL:  cfg.Redis.HistoryTTL,
		Publisher: infra.publisher,
		Archive:   infra.archive,
		Metrics:   metrics,
		Logger:    logger,
	})

	if cfg.Upstream.APIKey == "" {
		logger.Warn("upstream.api_key is not set; generation requests will fail")
	}
	relay := molmim.NewClient(cfg.Upstream, metrics, logger)

	routerCfg := httpserver.RouterConfig{
		ProxyHandler:     handlers.NewProxyHandler(relay, cfg.Server.MaxBodySize, logger),
		HistoryHandler:   handlers.NewHistoryHandler(svc),
		HealthHandler:    handlers.NewHealthHandler(version, metrics, infra.checkers...),
		Auth:             middleware.NewAuthMiddleware(cfg.Auth, metrics, logger),
		Logger:           logger,
		Metrics:          metrics,
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
		SentryEnabled:    sentryEnabled,
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter := middleware.NewKeyedLimiter(rl.RequestsPerSecond, rl.Burst, time.Minute)
		defer limiter.Stop()
		routerCfg.RateLimit = middleware.RateLimit(limiter, middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		}, metrics)
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		routerCfg.CORS = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins))
	}
	if !cfg.Auth.Enabled {
		logger.Warn("auth is disabled; the X-User-ID header is trusted as the user identity")
	}

	gin.SetMode(cfg.Server.Mode)
	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("MolForge API server stopped")
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Initialization
// ─────────────────────────────────────────────────────────────────────────────

func initSentry(cfg config.SentryConfig) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "molforge-apiserver@" + version,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return false, fmt.Errorf("sentry: %w", err)
	}
	return true, nil
}

// watchConfig applies log level changes from the config file at runtime.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(c *config.Config) {
		level, err := logging.ParseLevel(string(c.Log.Level))
		if err != nil {
			return
		}
		if logging.SetLevel(logger, level) {
			logger.Info("log level changed", logging.String("level", level.String()))
		}
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

func initMetrics(cfg config.MetricsConfig, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.AppMetrics, error) {
	if !cfg.Enabled {
		return nil, prometheus.NewNoopAppMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
		ConstLabels:          map[string]string{"service": "apiserver"},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prometheus.NewAppMetrics(collector), nil
}

// infrastructure holds the backing services of the API server.  Optional
// services stay nil when disabled.
type infrastructure struct {
	pg        *postgres.Connection
	redis     *redis.Client
	producer  *kafka.Producer
	minio     *minio.Client
	cache     redis.Cache
	publisher kafka.Publisher
	archive   minio.ObjectStorageRepository
	checkers  []handlers.HealthChecker
	logger    logging.Logger
}

func (i *infrastructure) Close() {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			i.logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if i.minio != nil {
		_ = i.minio.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.pg != nil {
		_ = i.pg.Close()
	}
}

func initInfrastructure(ctx context.Context, cfg *config.Config, metrics *prometheus.AppMetrics, logger logging.Logger) (*infrastructure, error) {
	infra := &infrastructure{logger: logger}

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.pg = pg
	infra.checkers = append(infra.checkers, handlers.NewChecker("postgres", pg.HealthCheck))

	if cfg.Database.AutoMigrate {
		migrator, err := postgres.NewMigrator(pg, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.redis = rc
		infra.cache = redis.NewRedisCache(rc, logger,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.HistoryTTL))
		infra.checkers = append(infra.checkers, handlers.NewChecker("redis", rc.Ping))
	}

	if cfg.Kafka.Enabled {
		provisionTopics(ctx, cfg.Kafka, logger)
		producer, err := kafka.NewProducer(producerConfig(cfg.Kafka), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		infra.producer = producer
		infra.publisher = producer
	}

	if cfg.MinIO.Enabled {
		mc, err := minio.NewClient(ctx, cfg.MinIO, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.minio = mc
		infra.archive = minio.NewMinIORepository(mc, logger)
		infra.checkers = append(infra.checkers, handlers.NewChecker("minio", func(ctx context.Context) error {
			_, err := mc.HealthCheck(ctx)
			return err
		}))
	}

	logger.Info("infrastructure initialized",
		logging.Bool("redis", infra.redis != nil),
		logging.Bool("kafka", infra.producer != nil),
		logging.Bool("minio", infra.minio != nil))
	return infra, nil
}

func producerConfig(k config.KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      k.Brokers,
		MaxRetries:   k.MaxRetries,
		WriteTimeout: k.WriteTimeout,
		SASL: kafka.SASLConfig{
			Mechanism: k.SASLMechanism,
			Username:  k.SASLUsername,
			Password:  k.SASLPassword,
		},
	}
}

// provisionTopics creates the event topics when missing.  Brokers that
// forbid topic creation are tolerated.
func provisionTopics(ctx context.Context, k config.KafkaConfig, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(k.Brokers, logger)
	if err != nil {
		logger.Warn("kafka topic provisioning skipped", logging.Err(err))
		return
	}
	defer tm.Close()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(k.TopicPartitions, k.ReplicationFactor, k.DeadLetterTopic)); err != nil {
		logger.Warn("kafka topic provisioning failed", logging.Err(err))
	}
}
