package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/platewise/cartpay/internal/domain"
	pkgkafka "github.com/platewise/cartpay/pkg/kafka"
)

// Kafka topics for cart and payment domain events.
const (
	TopicCartUpdated      = "cartpay.cart.updated"
	TopicCartCleared      = "cartpay.cart.cleared"
	TopicPaymentSucceeded = "cartpay.payment.succeeded"
	TopicPaymentFailed    = "cartpay.payment.failed"
	TopicPaymentCancelled = "cartpay.payment.cancelled"
)

const (
	AggregateTypeCart    = "cart"
	AggregateTypePayment = "payment"
)

// Source identifier for events originating from this engine.
const SourceCartpay = "cartpay"

// Publisher is what the services need from the event layer. Publish
// failures are logged and swallowed by callers; events are best-effort.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, userID string) error
	PublishPaymentOutcome(ctx context.Context, attempt *domain.PaymentAttempt) error
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID     string `json:"user_id"`
	SellerID   string `json:"seller_id"`
	ItemCount  int    `json:"item_count"`
	Subtotal   int64  `json:"subtotal"`
	TotalTax   int64  `json:"total_tax"`
	GrandTotal int64  `json:"grand_total"`
	Currency   string `json:"currency"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	UserID string `json:"user_id"`
}

// PaymentOutcomeData is the payload for payment terminal-outcome events.
type PaymentOutcomeData struct {
	UserID         string `json:"user_id"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	PaymentID      string `json:"payment_id,omitempty"`
	Status         string `json:"status"`
	ErrorCode      string `json:"error_code,omitempty"`
	AttemptNumber  int    `json:"attempt_number"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
}

// Producer publishes domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates the Kafka-backed event publisher.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		UserID:     cart.UserID,
		SellerID:   cart.SellerID(),
		ItemCount:  cart.ItemCount(),
		Subtotal:   cart.Totals.Subtotal,
		TotalTax:   cart.Totals.TotalTax,
		GrandTotal: cart.Totals.GrandTotal,
		Currency:   cart.Currency,
	}

	event, err := pkgkafka.NewEvent(TopicCartUpdated, cart.UserID, AggregateTypeCart, SourceCartpay, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, userID string) error {
	event, err := pkgkafka.NewEvent(TopicCartCleared, userID, AggregateTypeCart, SourceCartpay, CartClearedData{UserID: userID})
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	return nil
}

// PublishPaymentOutcome publishes the terminal outcome of a payment
// sequence to the topic matching the attempt status.
func (p *Producer) PublishPaymentOutcome(ctx context.Context, attempt *domain.PaymentAttempt) error {
	var topic string
	switch attempt.Status {
	case domain.AttemptSucceeded:
		topic = TopicPaymentSucceeded
	case domain.AttemptCancelled:
		topic = TopicPaymentCancelled
	default:
		topic = TopicPaymentFailed
	}

	data := PaymentOutcomeData{
		UserID:         attempt.UserID,
		GatewayOrderID: attempt.GatewayOrderID,
		PaymentID:      attempt.PaymentID,
		Status:         string(attempt.Status),
		ErrorCode:      attempt.ErrorCode,
		AttemptNumber:  attempt.AttemptNumber,
		AmountMinor:    attempt.AmountMinor,
		Currency:       attempt.Currency,
	}

	event, err := pkgkafka.NewEvent(topic, attempt.UserID, AggregateTypePayment, SourceCartpay, data)
	if err != nil {
		return fmt.Errorf("create payment outcome event: %w", err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish payment outcome event: %w", err)
	}

	p.logger.DebugContext(ctx, "published payment outcome",
		slog.String("topic", topic),
		slog.String("user_id", attempt.UserID),
		slog.String("status", string(attempt.Status)),
	)

	return nil
}

// NopPublisher discards all events. Used in tests and when Kafka is
// disabled.
type NopPublisher struct{}

func (NopPublisher) PublishCartUpdated(context.Context, *domain.Cart) error { return nil }

func (NopPublisher) PublishCartCleared(context.Context, string) error { return nil }

func (NopPublisher) PublishPaymentOutcome(context.Context, *domain.PaymentAttempt) error { return nil }
