package minio

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
)

const (
	historyPrefix   = "history/"
	jsonContentType = "application/json"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// HistoryObjectKey returns the key under which a user's record is archived.
// Both segments are path-escaped so a user id cannot leave its prefix.
func HistoryObjectKey(userID, recordID string) string {
	return historyPrefix + url.PathEscape(userID) + "/" + url.PathEscape(recordID) + ".json"
}

// ObjectStorageRepository stores opaque JSON documents in the archive bucket.
type ObjectStorageRepository interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error)
	GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, time.Time, error)
}

// UploadRequest describes one object write.  ContentType defaults to JSON.
type UploadRequest struct {
	ObjectKey   string
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Tags        map[string]string
}

type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	VersionID  string
	UploadedAt time.Time
}

type ObjectMetadata struct {
	Bucket       string
	ObjectKey    string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

type minioRepository struct {
	client *Client
	logger logging.Logger
}

// NewMinIORepository returns a repository writing into client's bucket.
func NewMinIORepository(client *Client, log logging.Logger) ObjectStorageRepository {
	return &minioRepository{client: client, logger: log.Named("minio_repo")}
}

func (r *minioRepository) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if r.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if req == nil || req.ObjectKey == "" || len(req.Data) == 0 {
		return nil, ErrInvalidRequest
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = jsonContentType
	}

	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: req.Metadata,
		UserTags:     req.Tags,
	}
	info, err := r.client.api.PutObject(ctx, r.client.Bucket(), req.ObjectKey, bytes.NewReader(req.Data), int64(len(req.Data)), opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "upload failed")
	}

	r.logger.Debug("Object uploaded",
		logging.String("key", req.ObjectKey),
		logging.Int64("size", info.Size))
	return &UploadResult{
		Bucket:     info.Bucket,
		ObjectKey:  info.Key,
		ETag:       info.ETag,
		Size:       info.Size,
		VersionID:  info.VersionID,
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (r *minioRepository) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.GetMetadata(ctx, objectKey)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *minioRepository) GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error) {
	info, err := r.client.api.StatObject(ctx, r.client.Bucket(), objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed")
	}
	return &ObjectMetadata{
		Bucket:       r.client.Bucket(),
		ObjectKey:    objectKey,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		Metadata:     info.UserMetadata,
	}, nil
}

// GetPresignedDownloadURL signs a GET for objectKey.  A zero expiry uses the
// client default.  The returned time is when the URL stops working.
func (r *minioRepository) GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, time.Time, error) {
	if expiry <= 0 {
		expiry = r.client.PresignExpiry()
	}
	params := url.Values{}
	params.Set("response-content-disposition", `attachment; filename="`+path.Base(objectKey)+`"`)

	signedAt := time.Now().UTC()
	u, err := r.client.api.PresignedGetObject(ctx, r.client.Bucket(), objectKey, expiry, params)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrCodeStorageError, "presign failed")
	}
	return u.String(), signedAt.Add(expiry), nil
}
