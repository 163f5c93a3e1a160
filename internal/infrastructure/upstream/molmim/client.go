// Package molmim relays generation requests to the external molecule
// generation service.  The service credential lives only here.
package molmim

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/pkg/errors"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 16 << 20

// Upstream call outcomes used as metric labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Response is an answer received from the service.  Body is the raw bytes
// as sent; for a 2xx answer it is guaranteed to be valid JSON.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the service accepted the request.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Relay forwards one generation request body.
type Relay interface {
	Generate(ctx context.Context, body []byte) (*Response, error)
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the generation service over HTTPS.
type Client struct {
	doer    HTTPDoer
	url     string
	apiKey  string
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(d HTTPDoer) Option {
	return func(c *Client) { c.doer = d }
}

// NewClient builds a Client from cfg.  metrics may be nil.
func NewClient(cfg config.UpstreamConfig, metrics *prometheus.AppMetrics, log logging.Logger, opts ...Option) *Client {
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	url := cfg.URL
	if url == "" {
		url = config.DefaultUpstreamURL
	}
	c := &Client{
		doer:    &http.Client{Timeout: timeout},
		url:     url,
		apiKey:  cfg.APIKey,
		metrics: metrics,
		logger:  log.Named("molmim"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate posts body unchanged.  A non-2xx answer is returned as a Response
// with a nil error; the error return is reserved for local failures: a
// missing credential, a transport failure or a 2xx body that is not JSON.
func (c *Client) Generate(ctx context.Context, body []byte) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.New(errors.ErrCodeUpstreamUnavailable, "generation service API key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamUnavailable, "failed to build upstream request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		prometheus.RecordUpstreamCall(c.metrics, OutcomeError, time.Since(start))
		c.logger.WithContext(ctx).Error("generation service unreachable", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		prometheus.RecordUpstreamCall(c.metrics, OutcomeError, time.Since(start))
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamUnavailable, err.Error())
	}

	out := &Response{StatusCode: resp.StatusCode, Body: data}
	elapsed := time.Since(start)
	if !out.OK() {
		prometheus.RecordUpstreamCall(c.metrics, OutcomeRejected, elapsed)
		c.logger.WithContext(ctx).Warn("generation service rejected request",
			logging.Int("status", resp.StatusCode),
			logging.Duration("latency", elapsed))
		return out, nil
	}
	if !json.Valid(data) {
		prometheus.RecordUpstreamCall(c.metrics, OutcomeError, elapsed)
		return nil, errors.New(errors.ErrCodeUpstreamBadResponse, "generation service returned invalid JSON")
	}

	prometheus.RecordUpstreamCall(c.metrics, OutcomeOK, elapsed)
	c.logger.WithContext(ctx).Debug("generation service answered",
		logging.Int("bytes", len(data)),
		logging.Duration("latency", elapsed))
	return out, nil
}
