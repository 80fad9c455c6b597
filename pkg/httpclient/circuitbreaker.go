package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker guarding one upstream, such as
// the marketplace order endpoint.
type CircuitBreakerConfig struct {
	// Name identifies the upstream in metrics and logs.
	Name string

	// MaxRequests allowed through while half-open. 0 means 1.
	MaxRequests uint32

	// Interval resets the closed-state counters; Timeout is how long the
	// breaker stays open before probing again.
	Interval time.Duration
	Timeout  time.Duration

	// FailureRatio trips the breaker once at least MinRequests calls have
	// been observed in the current interval.
	FailureRatio float64
	MinRequests  uint32
}

// FallbackFunc substitutes a response while the breaker is open.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

var (
	upstreamCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cartpay_upstream_circuit_state",
			Help: "Circuit state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	upstreamCircuitFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartpay_upstream_circuit_fallbacks_total",
			Help: "Fallback invocations while an upstream circuit was open",
		},
		[]string{"upstream"},
	)
)

func gaugeValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// UpstreamStatusError is returned when the upstream answered with a 5xx.
// The breaker counts it as a failure; callers can still read the status
// and body excerpt.
type UpstreamStatusError struct {
	Status int
	Body   string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerClient guards a Client with a gobreaker circuit.
type CircuitBreakerClient struct {
	client   *Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	logger   *slog.Logger
	fallback FallbackFunc
	name     string
}

// NewCircuitBreakerClient wraps client with a breaker built from cfg.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](breakerSettings(cfg, logger))
	upstreamCircuitState.WithLabelValues(cfg.Name).Set(gaugeValue(gobreaker.StateClosed))

	return &CircuitBreakerClient{
		client:  client,
		breaker: breaker,
		logger:  logger,
		name:    cfg.Name,
	}
}

func breakerSettings(cfg CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit state change",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			upstreamCircuitState.WithLabelValues(name).Set(gaugeValue(to))
		},
	}
}

// WithFallback returns a copy that answers from fn instead of
// surfacing ErrCircuitOpen while the circuit is open.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

// Do executes the request through the breaker. A 5xx answer counts as a
// failure and surfaces as *UpstreamStatusError.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &UpstreamStatusError{Status: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})

	if err == nil {
		return resp, nil
	}

	if c.fallback != nil && errors.Is(err, ErrCircuitOpen) {
		upstreamCircuitFallbacks.WithLabelValues(c.name).Inc()
		c.logger.WarnContext(ctx, "upstream circuit open, serving fallback",
			slog.String("upstream", c.name),
		)
		return c.fallback(ctx, err)
	}

	return nil, err
}

// Post performs a POST request through the breaker.
func (c *CircuitBreakerClient) Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

// State reports the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
