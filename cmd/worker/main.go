// Command worker consumes MolForge domain events.  It archives every new
// history record to object storage and dead-letters events that keep failing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
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
	"github.com/turtacn/MolForge/internal/interfaces/events"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
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

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped with error", logging.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return errors.New("kafka.enabled must be true for the worker")
	}
	if !cfg.MinIO.Enabled {
		return errors.New("minio.enabled must be true for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting MolForge worker",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("group", cfg.Kafka.GroupID))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "molforge-worker@" + version,
		}); err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var (
		collector prometheus.MetricsCollector
		metrics   = prometheus.NewNoopAppMetrics()
	)
	if cfg.Metrics.Enabled {
		c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:       cfg.Metrics.Namespace,
			EnableGoMetrics: true,
			ConstLabels:     map[string]string{"service": "worker"},
		}, logger)
		if err != nil {
			return err
		}
		collector, metrics = c, prometheus.NewAppMetrics(c)
	}

	infra, err := initWorkerInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc := history.NewService(history.Deps{
		Repo:    repositories.NewPostgresHistoryRepo(infra.pg, logger),
		Archive: minio.NewMinIORepository(infra.minio, logger),
		Metrics: metrics,
		Logger:  logger,
	})

	handlerCfg := events.ArchiveHandlerConfig{
		Archiver: svc,
		Timeout:  cfg.Worker.HandlerTimeout,
		Metrics:  metrics,
		Logger:   logger,
	}
	if infra.redis != nil {
		handlerCfg.Claims = redis.NewRedisCache(infra.redis, logger, redis.WithPrefix(cfg.Redis.KeyPrefix+"worker:"))
	}
	archiveHandler := events.NewArchiveHandler(handlerCfg)

	dlqTopic := cfg.Kafka.DeadLetterTopic
	if dlqTopic == "" {
		dlqTopic = kafka.TopicHistoryCreatedDeadLetter
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topics:          []string{archiveHandler.Topic()},
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		SASL:            saslConfig(cfg.Kafka),
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      cfg.Kafka.MaxRetries,
			RetryBackoff:    cfg.Kafka.RetryBackoff,
			DeadLetterTopic: dlqTopic,
		},
	}, infra.producer, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Subscribe(archiveHandler.Topic(), archiveHandler.Handle)

	healthSrv := startHealthServer(cfg, infra, collector, metrics, logger)

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("worker consuming", logging.String("topic", archiveHandler.Topic()))

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for the in-flight message")

	if err := consumer.Close(); err != nil {
		logger.Warn("kafka consumer close failed", logging.Err(err))
	}
	processed := consumer.Metrics()
	logger.Info("consumer stopped",
		logging.Int64("processed", processed.MessagesProcessed.Load()),
		logging.Int64("dead_lettered", processed.MessagesDeadLettered.Load()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", logging.Err(err))
	}

	logger.Info("MolForge worker stopped")
	return nil
}

func saslConfig(k config.KafkaConfig) kafka.SASLConfig {
	return kafka.SASLConfig{Mechanism: k.SASLMechanism, Username: k.SASLUsername, Password: k.SASLPassword}
}

// workerInfrastructure holds infrastructure clients for the worker process.
type workerInfrastructure struct {
	pg       *postgres.Connection
	redis    *redis.Client
	minio    *minio.Client
	producer *kafka.Producer
}

func (w *workerInfrastructure) Close() {
	if w.producer != nil {
		_ = w.producer.Close()
	}
	if w.minio != nil {
		_ = w.minio.Close()
	}
	if w.redis != nil {
		_ = w.redis.Close()
	}
	if w.pg != nil {
		_ = w.pg.Close()
	}
}

func initWorkerInfrastructure(ctx context.Context, cfg *config.Config, logger logging.Logger) (*workerInfrastructure, error) {
	infra := &workerInfrastructure{}

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.pg = pg

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.redis = rc
	}

	mc, err := minio.NewClient(ctx, cfg.MinIO, logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("minio: %w", err)
	}
	infra.minio = mc

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		WriteTimeout: cfg.Kafka.WriteTimeout,
		SASL:         saslConfig(cfg.Kafka),
	}, logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	infra.producer = producer

	logger.Info("worker infrastructure initialized")
	return infra, nil
}

// startHealthServer exposes /healthz, /readyz and the metrics endpoint on
// the worker health port.
func startHealthServer(cfg *config.Config, infra *workerInfrastructure, collector prometheus.MetricsCollector, metrics *prometheus.AppMetrics, logger logging.Logger) *http.Server {
	checkers := []handlers.HealthChecker{
		handlers.NewChecker("postgres", infra.pg.HealthCheck),
		handlers.NewChecker("minio", func(ctx context.Context) error {
			_, err := infra.minio.HealthCheck(ctx)
			return err
		}),
	}
	if infra.redis != nil {
		checkers = append(checkers, handlers.NewChecker("redis", infra.redis.Ping))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHealthHandler(version, metrics, checkers...).RegisterRoutes(r)
	if collector != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(collector.Handler()))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health server listening", logging.Int("port", cfg.Worker.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
