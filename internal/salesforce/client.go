package salesforce

// client.go is the rate-limited HTTP layer beneath the Bulk API adapter.
//
// Requests carry the session token in the X-SFDC-Session header. Only
// idempotent reads (status polls, result streams) are retried with
// exponential backoff; writes mutate remote state and are attempted exactly
// once so the orchestrator's failure policy stays in charge.

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
	"golang.org/x/time/rate"
)

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for failed idempotent requests (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Transport allows injecting a custom HTTP transport (for tests).
	Transport http.RoundTripper
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10.0
	}
	if c.RateBurst == 0 {
		c.RateBurst = 5
	}
	return c
}

// client is a rate-limited HTTP client bound to one session.
type client struct {
	session     Session
	cfg         ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func newClient(session Session, cfg ClientConfig) *client {
	cfg = cfg.withDefaults()
	return &client{
		session: session,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// do executes a request. Idempotent GETs are retried on transport failures
// and 5xx/429 responses with exponential backoff; everything else runs once.
// The caller owns the response body.
func (c *client) do(ctx context.Context, op, method, url, contentType string, body io.Reader) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &bulk.TransportError{Op: op, Err: err}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, &bulk.TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		resp, err := c.doOnce(ctx, op, method, url, contentType, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *client) doOnce(ctx context.Context, op, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &bulk.TransportError{Op: op, Err: err}
	}
	req.Header.Set("X-SFDC-Session", c.session.SessionID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &bulk.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, remoteError(op, resp)
	}
	return resp, nil
}

// apiError is the async API's XML error envelope.
type apiError struct {
	XMLName          xml.Name `xml:"error"`
	ExceptionCode    string   `xml:"exceptionCode"`
	ExceptionMessage string   `xml:"exceptionMessage"`
}

// remoteError maps an HTTP error response to a domain error: 5xx and 429
// become transport errors (retry candidates), other 4xx become remote
// service rejections carrying the exceptionCode when the body has one.
func remoteError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &bulk.TransportError{
			Op:  op,
			Err: fmt.Errorf("http %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var e apiError
	if err := xml.Unmarshal(raw, &e); err == nil && e.ExceptionCode != "" {
		return &bulk.RemoteServiceError{Op: op, Code: e.ExceptionCode, Message: e.ExceptionMessage}
	}
	return &bulk.RemoteServiceError{
		Op:      op,
		Message: fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw)),
	}
}

func retryable(err error) bool {
	_, ok := err.(*bulk.TransportError)
	return ok
}
