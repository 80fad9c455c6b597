// Package httpclient provides the outbound HTTP clients used to reach
// the marketplace backend and the payment gateway: a retrying base
// client and a circuit-breaker wrapper for flaky upstreams.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP client configuration. Callers that own their retry
// loop, like the payment coordinator, must set MaxRetries to 0 so the
// transport never retries underneath them.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns the settings used for ordinary service calls.
// Checkout-path calls override these per upstream.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    4 * time.Second,
		MaxConnsPerHost: 64,
	}
}

// Client is an http.Client with bounded retries for transient failures
// and pooled connections.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New creates a client from cfg. Zero wait bounds fall back to the
// defaults so a partially filled Config still backs off sanely.
func New(cfg Config) *Client {
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 4 * time.Second
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 64
	}

	return &Client{
		httpClient: &http.Client{
			Transport: newTransport(cfg),
			Timeout:   cfg.Timeout,
		},
		cfg: cfg,
	}
}

// newTransport builds the pooled transport. Both upstreams sit inside
// the same deployment, so dial and TLS handshake budgets are short.
func newTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          2 * cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// backoffFor returns the wait before the given retry attempt, doubling
// from RetryWaitMin and capped at RetryWaitMax.
func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.cfg.RetryWaitMin << uint(attempt-1)
	if wait > c.cfg.RetryWaitMax || wait <= 0 {
		return c.cfg.RetryWaitMax
	}
	return wait
}

// retryableStatus reports whether a response status is worth retrying.
// 501 is excluded: the server will not change its mind about a method
// it does not implement.
func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}

// rewind restores the request body before a retry. Requests built with
// http.NewRequest from a bytes or strings reader carry GetBody; a
// request without it cannot be retried safely once the body is read.
func rewind(req *http.Request) bool {
	if req.Body == nil || req.GetBody == nil {
		return true
	}
	body, err := req.GetBody()
	if err != nil {
		return false
	}
	req.Body = body
	return true
}

// Do executes the request, retrying transient transport errors and
// retryable 5xx responses up to MaxRetries times.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoffFor(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if !rewind(req) {
				return nil, errors.New("httpclient: request body cannot be rewound for retry")
			}
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if isRetryableError(err) && attempt < c.cfg.MaxRetries {
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}

		if retryableStatus(resp.StatusCode) && attempt < c.cfg.MaxRetries {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return resp, err
}

// Get performs a GET request with retry.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs a POST request with retry. The body must come from a
// rewindable reader for retries to resend it.
func (c *Client) Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

// isRetryableError reports whether a transport error is transient.
// Context cancellation is the caller giving up, never retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
