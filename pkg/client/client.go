// Package client is the Go SDK for the MolForge API: the generation proxy
// and the per-user history endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/turtacn/MolForge/pkg/errors"
)

const Version = "0.1.0"

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Client is the MolForge SDK client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	token        string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	history     *HistoryClient
	historyOnce sync.Once
}

// APIError is a non-2xx answer from the API.  Code is empty for answers of
// the generation proxy, which only carry a message.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("molforge: HTTP %d: %s [request_id=%s]", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("molforge: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsServerError() bool  { return e.StatusCode >= 500 && e.StatusCode < 600 }

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid baseURL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeValidation, "baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		userAgent:    "molforge-go-sdk/" + Version,
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithToken returns a client sharing c's transport that authenticates as
// the holder of token.
func (c *Client) WithToken(token string) *Client {
	return &Client{
		baseURL:      c.baseURL,
		httpClient:   c.httpClient,
		token:        token,
		userAgent:    c.userAgent,
		logger:       c.logger,
		retryMax:     c.retryMax,
		retryWaitMin: c.retryWaitMin,
		retryWaitMax: c.retryWaitMax,
	}
}

// History returns the history sub-client.
func (c *Client) History() *HistoryClient {
	c.historyOnce.Do(func() {
		c.history = &HistoryClient{client: c}
	})
	return c.history
}

// do sends one request.  GET requests are retried on transport errors and
// 5xx answers; anything else is sent exactly once.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal request body")
		}
	}

	attempt := func() error {
		err := c.send(ctx, method, path, payload, result)
		if err == nil {
			return nil
		}
		if method != http.MethodGet || !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debugf("retrying %s %s: %v", method, path, err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWaitMin
	b.MaxInterval = c.retryWaitMax
	b.MaxElapsedTime = 0
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryMax)), ctx))
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}
	return true
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, result interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "failed to create request")
	}

	requestID := uuid.NewString()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorf("%s %s failed: %v", method, path, err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, requestID, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal response")
		}
	}
	return nil
}

// parseAPIError understands both the {code, message} body of the v1 API and
// the {error} body of the generation proxy.
func parseAPIError(status int, requestID string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	switch {
	case len(body) == 0:
		apiErr.Message = http.StatusText(status)
	case json.Unmarshal(body, &parsed) == nil:
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	default:
		apiErr.Message = string(body)
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}
