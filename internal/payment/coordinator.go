package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/internal/event"
	"github.com/platewise/cartpay/internal/gateway"
	"github.com/platewise/cartpay/internal/repository"
	apperrors "github.com/platewise/cartpay/pkg/errors"
)

var (
	paymentInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_in_flight",
		Help: "Whether a payment sequence is currently in flight (0 or 1)",
	})

	paymentAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_attempts_total",
			Help: "Total gateway payment attempts by recorded status",
		},
		[]string{"status"},
	)

	paymentSequencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sequences_total",
			Help: "Total payment sequences by terminal outcome",
		},
		[]string{"outcome"},
	)
)

// Config bounds the automatic retry loop.
type Config struct {
	// MaxRetries is the number of automatic retries after the first
	// attempt; a sequence makes at most MaxRetries+1 gateway calls.
	MaxRetries int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

// Coordinator serializes payment attempts against the gateway. At most one
// sequence is in flight per process; a second concurrent Process call
// fails fast with PaymentAlreadyInProgress and never reaches the gateway.
// Every gateway invocation is appended to the payment history, whatever
// its outcome.
type Coordinator struct {
	gateway gateway.Gateway
	history repository.PaymentHistoryRepository
	events  event.Publisher
	logger  *slog.Logger
	cfg     Config

	mu       sync.Mutex
	inFlight bool
}

// NewCoordinator creates a payment coordinator. One instance is shared per
// process; it is injected into the checkout service rather than held as a
// package global.
func NewCoordinator(gw gateway.Gateway, history repository.PaymentHistoryRepository, events event.Publisher, logger *slog.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		gateway: gw,
		history: history,
		events:  events,
		logger:  logger,
		cfg:     cfg,
	}
}

// acquire marks the coordinator in flight, failing fast if it already is.
func (c *Coordinator) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return apperrors.PaymentAlreadyInProgress()
	}
	c.inFlight = true
	paymentInFlight.Set(1)
	return nil
}

// release clears the in-flight flag. Called on every exit path.
func (c *Coordinator) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	paymentInFlight.Set(0)
}

// Process runs one payment sequence: it holds the in-flight flag across
// the whole retry loop, invokes the gateway up to MaxRetries+1 times with
// a fixed backoff between attempts, and records every attempt. Classified
// failures other than Cancelled are retried; cancellation and invalid
// configuration are terminal immediately.
func (c *Coordinator) Process(ctx context.Context, userID string, opts gateway.CheckoutOptions) (*gateway.Result, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	// Configuration problems short-circuit before the gateway: no
	// attempt happens, so no history record is written.
	if opts.KeyID == "" {
		return nil, apperrors.InvalidConfiguration("gateway key is missing")
	}
	if opts.GatewayOrderID == "" {
		return nil, apperrors.InvalidConfiguration("gateway order id is missing")
	}

	var lastErr *gateway.Error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				gwErr := gateway.ClassifyErr(ctx.Err())
				paymentSequencesTotal.WithLabelValues(string(gwErr.Code)).Inc()
				return nil, gwErr
			case <-time.After(c.cfg.Backoff):
			}
		}

		result, err := c.gateway.Checkout(ctx, opts)
		if err == nil && result != nil && result.PaymentID != "" {
			c.record(ctx, userID, opts, attempt+1, domain.AttemptSucceeded, result, "")
			paymentSequencesTotal.WithLabelValues("succeeded").Inc()
			c.logger.InfoContext(ctx, "payment succeeded",
				slog.String("user_id", userID),
				slog.String("payment_id", result.PaymentID),
				slog.Int("attempt", attempt+1),
			)
			return result, nil
		}

		if err == nil {
			// A "success" without a payment identifier is not trusted.
			err = &gateway.Error{Code: gateway.CodeUnknown, Description: "gateway returned no payment id"}
		}

		gwErr := gateway.ClassifyErr(err)
		lastErr = gwErr

		status := domain.AttemptFailed
		if gwErr.Code == gateway.CodeCancelled {
			status = domain.AttemptCancelled
		}
		c.record(ctx, userID, opts, attempt+1, status, nil, string(gwErr.Code))

		c.logger.WarnContext(ctx, "payment attempt failed",
			slog.String("user_id", userID),
			slog.String("code", string(gwErr.Code)),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", c.cfg.MaxRetries),
		)

		// Cancellation is the user's decision; never retried.
		if gwErr.Code == gateway.CodeCancelled {
			paymentSequencesTotal.WithLabelValues("cancelled").Inc()
			return nil, gwErr
		}
	}

	paymentSequencesTotal.WithLabelValues("failed").Inc()
	return nil, lastErr
}

// record appends an attempt to the history and publishes its outcome.
// Audit failures are logged, never surfaced: the payment outcome the
// gateway reported stands regardless.
func (c *Coordinator) record(ctx context.Context, userID string, opts gateway.CheckoutOptions, attemptNumber int, status domain.AttemptStatus, result *gateway.Result, errorCode string) {
	attempt := &domain.PaymentAttempt{
		ID:             uuid.New().String(),
		UserID:         userID,
		GatewayOrderID: opts.GatewayOrderID,
		Status:         status,
		ErrorCode:      errorCode,
		AttemptNumber:  attemptNumber,
		AmountMinor:    opts.AmountMinor,
		Currency:       opts.Currency,
		CreatedAt:      time.Now().UTC(),
	}
	if result != nil {
		attempt.PaymentID = result.PaymentID
	}

	paymentAttemptsTotal.WithLabelValues(string(status)).Inc()

	if err := c.history.Append(ctx, attempt); err != nil {
		c.logger.ErrorContext(ctx, "failed to record payment attempt",
			slog.String("user_id", userID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}

	if err := c.events.PublishPaymentOutcome(ctx, attempt); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish payment outcome event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
