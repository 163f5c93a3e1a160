// Package events holds the message handlers run by the worker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/pkg/errors"
)

// DefaultClaimTTL bounds how long an archived record is remembered as done.
const DefaultClaimTTL = 24 * time.Hour

// Archiver writes a history record snapshot to object storage.
type Archiver interface {
	Archive(ctx context.Context, recordID uuid.UUID) (string, error)
}

// Claimer deduplicates redelivered events.  redis.Cache satisfies it.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// ArchiveHandler archives every history record announced on
// kafka.TopicHistoryCreated.
type ArchiveHandler struct {
	archiver Archiver
	claims   Claimer
	claimTTL time.Duration
	timeout  time.Duration
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

// ArchiveHandlerConfig configures an ArchiveHandler.  Claims and Metrics may
// be nil; a nil Logger falls back to logging.Default().
type ArchiveHandlerConfig struct {
	Archiver Archiver
	Claims   Claimer
	ClaimTTL time.Duration
	// Timeout bounds one Handle call; zero means no bound.
	Timeout time.Duration
	Metrics *prometheus.AppMetrics
	Logger  logging.Logger
}

// NewArchiveHandler builds an ArchiveHandler.
func NewArchiveHandler(cfg ArchiveHandlerConfig) *ArchiveHandler {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.NewNoopAppMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ArchiveHandler{
		archiver: cfg.Archiver,
		claims:   cfg.Claims,
		claimTTL: cfg.ClaimTTL,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Named("archive_handler"),
	}
}

// Topic returns the topic the handler consumes.
func (h *ArchiveHandler) Topic() string { return kafka.TopicHistoryCreated }

func claimKey(id uuid.UUID) string { return "archive:" + id.String() }

// Handle archives the record named by msg.  Events of another type are
// ignored.  A returned error makes the consumer retry and, eventually,
// dead-letter the message.
func (h *ArchiveHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	start := time.Now()
	defer func() {
		h.metrics.MessageProcessDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	}()

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		prometheus.RecordError(h.metrics, "archive_handler", "decode")
		return err
	}
	if env.EventType != domain.EventHistoryCreated {
		h.logger.Debug("ignoring event", logging.String("event_type", env.EventType))
		return nil
	}
	var evt domain.HistoryCreatedEvent
	if err := env.DecodePayload(&evt); err != nil {
		prometheus.RecordError(h.metrics, "archive_handler", "decode")
		return err
	}
	if evt.RecordID == uuid.Nil {
		return errors.New(errors.ErrCodeValidation, "history event without record id").WithDetail(env.EventID)
	}

	if env.RequestID != "" {
		ctx = logging.WithRequestID(ctx, env.RequestID)
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	log := h.logger.WithContext(ctx).With(
		logging.String("record_id", evt.RecordID.String()),
		logging.String(logging.FieldUserID, evt.UserID))

	// claimed is true only when this call took the claim; a claim it did not
	// take belongs to another delivery and must not be released here.
	claimed := false
	if h.claims != nil {
		ok, err := h.claims.Claim(ctx, claimKey(evt.RecordID), h.claimTTL)
		switch {
		case err != nil:
			// Archive skips objects that already exist.
			log.Warn("claim failed, archiving anyway", logging.Err(err))
		case !ok:
			log.Debug("record already archived")
			return nil
		default:
			claimed = true
		}
	}

	key, err := h.archiver.Archive(ctx, evt.RecordID)
	if err != nil {
		if claimed {
			if derr := h.claims.Delete(context.WithoutCancel(ctx), claimKey(evt.RecordID)); derr != nil {
				log.Warn("failed to release claim", logging.Err(derr))
			}
		}
		log.Error("archive failed", logging.Err(err))
		return err
	}
	log.Info("history record archived", logging.String("object_key", key))
	return nil
}
