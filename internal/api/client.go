// Package api provides the resilient HTTP client every other component
// talks to the platform through.
//
// The client wraps outbound calls with uniform error typing and bounded
// retry: transient HTTP statuses and network-level failures are retried
// with exponential backoff, everything else surfaces immediately as a
// *RequestError. It performs no caching.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Retry policy: up to 2 additional attempts with exponential backoff
// starting at 500ms and doubling.
const (
	maxRetries  = 2
	backoffBase = 500 * time.Millisecond
)

// retryableStatuses is the fixed allow-list of transient HTTP statuses.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Client issues JSON requests against the ordering platform.
//
// Thread-safety: Client is stateless apart from its configuration and is
// safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	maxRetries  int
	backoffBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy overrides the retry count and backoff base.
// Used by config wiring and by tests that cannot afford real backoff.
func WithRetryPolicy(retries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = retries
		c.backoffBase = base
	}
}

// WithSleep overrides the backoff sleep function (for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a Client for the given base URL.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		sleep:       sleepCtx,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues a JSON request and decodes the response body into out.
//
// body is JSON-encoded when non-nil; out may be nil when the caller does
// not need the response. On failure the returned error is always a
// *RequestError carrying the HTTP status, the endpoint, the raw response
// body, and a message extracted from the conventional server error fields.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return &RequestError{Endpoint: endpoint, Message: fmt.Sprintf("encode request: %v", err), Err: err}
		}
	}

	var lastErr *RequestError
	for attempt := 0; ; attempt++ {
		respBody, reqErr := c.roundTrip(ctx, method, endpoint, encoded)
		if reqErr == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return &RequestError{Endpoint: endpoint, ResponseBody: respBody,
					Message: fmt.Sprintf("decode response: %v", err), Err: err}
			}
			return nil
		}

		lastErr = reqErr
		if attempt >= c.maxRetries || !c.retryable(reqErr) {
			return lastErr
		}

		delay := c.backoffBase << attempt
		c.logger.Debug("retrying request",
			"endpoint", endpoint, "attempt", attempt+1, "delay", delay, "error", reqErr.Message)
		if err := c.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
}

// roundTrip performs a single attempt and classifies the outcome.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte) ([]byte, *RequestError) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network-level failure: no status, always retryable.
		return nil, &RequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	return nil, &RequestError{
		HTTPStatus:   resp.StatusCode,
		StatusText:   resp.Status,
		Endpoint:     endpoint,
		ResponseBody: respBody,
		Message:      extractMessage(respBody),
	}
}

// retryable reports whether a failed attempt may be retried.
func (c *Client) retryable(e *RequestError) bool {
	if e.HTTPStatus == 0 {
		return true // network-level failure
	}
	return retryableStatuses[e.HTTPStatus]
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
