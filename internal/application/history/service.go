// Package history provides the application service behind the History
// Store: creating records, listing a user's records newest first, exporting
// a record as a downloadable archive and archiving records for the worker.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/database/redis"
	"github.com/turtacn/MolForge/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/infrastructure/storage/minio"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// EventSource identifies this service on published envelopes.
const EventSource = "molforge-apiserver"

// minVersionTTL is the shortest lifetime of a user's list version counter.
const minVersionTTL = 24 * time.Hour

// ErrArchiveUnavailable is returned by Export and Archive when no object
// store is configured.
var ErrArchiveUnavailable = errors.New(errors.ErrCodeServiceUnavailable, "history archive is not configured")

// Service defines the history operations.
type Service interface {
	Create(ctx context.Context, userID string, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error)
	ListByUser(ctx context.Context, userID string) ([]gentypes.HistoryRecord, error)
	Get(ctx context.Context, userID, recordID string) (*gentypes.HistoryRecord, error)
	Export(ctx context.Context, userID, recordID string) (*gentypes.ExportResponse, error)
	Archive(ctx context.Context, recordID uuid.UUID) (string, error)
}

// Deps groups the collaborators of the service.  Only Repo is required;
// a nil Cache, Publisher or Archive disables that concern.  A nil Logger
// uses logging.Default().
type Deps struct {
	Repo      generation.HistoryRepository
	Cache     redis.Cache
	CacheTTL  time.Duration
	Publisher kafka.Publisher
	Archive   minio.ObjectStorageRepository
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

type serviceImpl struct {
	repo      generation.HistoryRepository
	cache     redis.Cache
	cacheTTL  time.Duration
	publisher kafka.Publisher
	archive   minio.ObjectStorageRepository
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// NewService creates the history application service.
func NewService(d Deps) Service {
	if d.Metrics == nil {
		d.Metrics = prometheus.NewNoopAppMetrics()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &serviceImpl{
		repo:      d.Repo,
		cache:     d.Cache,
		cacheTTL:  d.CacheTTL,
		publisher: d.Publisher,
		archive:   d.Archive,
		metrics:   d.Metrics,
		logger:    d.Logger.Named("history"),
	}
}

func listCacheKey(userID string, version int64) string {
	return fmt.Sprintf("history:user:%s:v%d", userID, version)
}

func listVersionKey(userID string) string {
	return "history:user:" + userID + ":ver"
}

// versionTTL outlives every list entry, so a counter that expires never
// brings back a list cached under an old version.
func (s *serviceImpl) versionTTL() time.Duration {
	if ttl := 4 * s.cacheTTL; ttl > minVersionTTL {
		return ttl
	}
	return minVersionTTL
}

func (s *serviceImpl) Create(ctx context.Context, userID string, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error) {
	rec, err := generation.NewHistoryRecord(userID, generation.RequestFromCreate(req), req.GeneratedMolecules)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.repo.Create(ctx, rec)
	prometheus.RecordDBQuery(s.metrics, "history_create", time.Since(start), err)
	s.metrics.HistoryWritesTotal.WithLabelValues(prometheus.StatusLabel(err)).Inc()
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to persist history record",
			logging.String(logging.FieldUserID, userID), logging.Err(err))
		return nil, err
	}

	s.invalidate(ctx, userID)
	s.publishCreated(ctx, rec)

	s.logger.WithContext(ctx).Info("history record created",
		logging.String("record_id", rec.ID.String()),
		logging.String(logging.FieldUserID, userID),
		logging.Int("candidates", len(rec.Candidates)))

	dto := rec.ToDTO()
	return &dto, nil
}

// invalidate retires the cached list by bumping the user's list version.
// Loads that started before the bump can only populate the retired key.
// A failure only delays visibility until the entry expires, so it is logged
// and not returned.
func (s *serviceImpl) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, listVersionKey(userID), s.versionTTL()); err != nil {
		s.logger.WithContext(ctx).Warn("failed to invalidate history cache",
			logging.String(logging.FieldUserID, userID), logging.Err(err))
	}
}

func (s *serviceImpl) publishCreated(ctx context.Context, rec *generation.HistoryRecord) {
	if s.publisher == nil {
		return
	}
	env, err := kafka.NewEventEnvelope(generation.EventHistoryCreated, EventSource, rec.CreatedEvent())
	if err == nil {
		env.RequestID = logging.RequestIDFromContext(ctx)
		var msg *kafka.ProducerMessage
		if msg, err = env.ToMessage(kafka.TopicHistoryCreated, rec.UserID); err == nil {
			err = s.publisher.Publish(ctx, msg)
		}
	}
	s.metrics.EventsPublishedTotal.WithLabelValues(kafka.TopicHistoryCreated, prometheus.StatusLabel(err)).Inc()
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to publish history event",
			logging.String("record_id", rec.ID.String()), logging.Err(err))
	}
}

func (s *serviceImpl) ListByUser(ctx context.Context, userID string) ([]gentypes.HistoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New(errors.ErrCodeHistoryInvalid, "user id is required")
	}

	start := time.Now()
	defer func() {
		s.metrics.HistoryReadDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	}()

	if s.cache == nil {
		return s.load(ctx, userID)
	}

	var version int64
	if err := s.cache.Get(ctx, listVersionKey(userID), &version); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		s.logger.WithContext(ctx).Warn("history cache unavailable, reading from store",
			logging.String(logging.FieldUserID, userID), logging.Err(err))
		return s.load(ctx, userID)
	}

	var (
		out    []gentypes.HistoryRecord
		loaded bool
	)
	err := s.cache.GetOrSet(ctx, listCacheKey(userID, version), &out, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		loaded = true
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordCacheAccess(s.metrics, "history", !loaded)
	if out == nil {
		out = []gentypes.HistoryRecord{}
	}
	return out, nil
}

func (s *serviceImpl) load(ctx context.Context, userID string) ([]gentypes.HistoryRecord, error) {
	start := time.Now()
	recs, err := s.repo.ListByUser(ctx, userID)
	prometheus.RecordDBQuery(s.metrics, "history_list", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	out := make([]gentypes.HistoryRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToDTO())
	}
	return out, nil
}

func (s *serviceImpl) Get(ctx context.Context, userID, recordID string) (*gentypes.HistoryRecord, error) {
	rec, err := s.owned(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	dto := rec.ToDTO()
	return &dto, nil
}

// owned loads recordID and hides records of other users behind not-found.
func (s *serviceImpl) owned(ctx context.Context, userID, recordID string) (*generation.HistoryRecord, error) {
	id, err := uuid.Parse(recordID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeHistoryNotFound, "history record not found").WithDetail(recordID)
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, errors.New(errors.ErrCodeHistoryNotFound, "history record not found").WithDetail(recordID)
	}
	return rec, nil
}

func (s *serviceImpl) Export(ctx context.Context, userID, recordID string) (*gentypes.ExportResponse, error) {
	resp, err := s.export(ctx, userID, recordID)
	s.metrics.HistoryExportsTotal.WithLabelValues(prometheus.StatusLabel(err)).Inc()
	return resp, err
}

func (s *serviceImpl) export(ctx context.Context, userID, recordID string) (*gentypes.ExportResponse, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	rec, err := s.owned(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	key, err := s.store(ctx, rec)
	if err != nil {
		return nil, err
	}
	url, expiresAt, err := s.archive.GetPresignedDownloadURL(ctx, key, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHistoryArchiveFailed, "failed to sign archive URL")
	}
	return &gentypes.ExportResponse{
		RecordID:  rec.ID.String(),
		ObjectKey: key,
		URL:       url,
		ExpiresAt: expiresAt,
	}, nil
}

// Archive writes the snapshot of recordID to object storage unless it is
// already there, and returns its object key.
func (s *serviceImpl) Archive(ctx context.Context, recordID uuid.UUID) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveUnavailable
	}
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return "", err
	}
	key, err := s.store(ctx, rec)
	s.metrics.HistoryArchivedTotal.WithLabelValues(prometheus.StatusLabel(err)).Inc()
	return key, err
}

func (s *serviceImpl) store(ctx context.Context, rec *generation.HistoryRecord) (string, error) {
	key := minio.HistoryObjectKey(rec.UserID, rec.ID.String())

	exists, err := s.archive.Exists(ctx, key)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeHistoryArchiveFailed, "failed to check archive")
	}
	if exists {
		return key, nil
	}

	data, err := json.MarshalIndent(rec.ToDTO(), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode history record")
	}
	_, err = s.archive.Upload(ctx, &minio.UploadRequest{
		ObjectKey: key,
		Data:      data,
		Metadata:  map[string]string{"record-id": rec.ID.String()},
		Tags:      map[string]string{"kind": "generation-history"},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeHistoryArchiveFailed, "failed to archive history record")
	}
	s.logger.WithContext(ctx).Info("history record archived",
		logging.String("record_id", rec.ID.String()),
		logging.String("key", key))
	return key, nil
}
