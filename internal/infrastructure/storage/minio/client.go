// Package minio stores archived history snapshots in an S3-compatible bucket.
package minio

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client used by this package.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

var (
	ErrMinIOClientClosed = errors.New(errors.ErrCodeStorageError, "minio client is closed")
	ErrBucketNotFound    = errors.New(errors.ErrCodeNotFound, "bucket not found")
)

// Client wraps a MinIO connection bound to the archive bucket.
type Client struct {
	api    MinIOAPI
	config config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects to cfg.Endpoint, creates the archive bucket when it is
// missing and installs the retention rule.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	c := NewClientWithAPI(api, cfg, log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	if err := c.SetupLifecycleRules(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI wraps an existing MinIOAPI.  No network calls are made.
func NewClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = config.DefaultPresignExpiry
	}
	if cfg.Region == "" {
		cfg.Region = config.DefaultMinIORegion
	}
	return &Client{api: api, config: cfg, logger: log.Named("minio")}
}

// EnsureBucket creates the archive bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.config.Bucket
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket "+bucket)
	}
	c.logger.Info("Created bucket", logging.String("bucket", bucket))
	return nil
}

// SetupLifecycleRules expires archives after RetentionDays.  A rejected rule
// is logged, not returned: some S3 implementations do not support lifecycle.
func (c *Client) SetupLifecycleRules(ctx context.Context) error {
	if c.config.RetentionDays <= 0 {
		return nil
	}
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:         "history-archive-expiry",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: historyPrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(c.config.RetentionDays)},
		},
	}
	if err := c.api.SetBucketLifecycle(ctx, c.config.Bucket, cfg); err != nil {
		c.logger.Warn("Failed to set lifecycle for archive bucket", logging.Err(err))
	}
	return nil
}

// HealthStatus is the result of HealthCheck.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Error   string
}

// HealthCheck verifies the archive bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if c.isClosed() {
		return &HealthStatus{Error: ErrMinIOClientClosed.Error()}, ErrMinIOClientClosed
	}

	start := time.Now()
	exists, err := c.api.BucketExists(ctx, c.config.Bucket)
	status := &HealthStatus{Healthy: err == nil && exists, Latency: time.Since(start)}

	switch {
	case err != nil:
		status.Error = err.Error()
		return status, errors.Wrap(err, errors.ErrCodeStorageError, "minio health check failed")
	case !exists:
		status.Error = ErrBucketNotFound.Error()
		return status, ErrBucketNotFound.WithDetail(c.config.Bucket)
	}
	return status, nil
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// PresignExpiry returns the configured lifetime of presigned URLs.
func (c *Client) PresignExpiry() time.Duration {
	return c.config.PresignExpiry
}

// Close marks the client closed.  minio-go holds no persistent connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
