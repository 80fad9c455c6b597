package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/internal/gateway"
	"github.com/platewise/cartpay/internal/money"
	apperrors "github.com/platewise/cartpay/pkg/errors"
)

// CheckoutResult is the success payload of a completed checkout.
type CheckoutResult struct {
	PaymentID      string `json:"payment_id"`
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
}

// orderCreator creates a gateway order through the marketplace backend.
type orderCreator interface {
	Create(ctx context.Context, req *gateway.OrderRequest) (string, error)
}

// paymentProcessor runs the serialized, retried payment sequence.
type paymentProcessor interface {
	Process(ctx context.Context, userID string, opts gateway.CheckoutOptions) (*gateway.Result, error)
}

// CheckoutService drives one checkout: snapshot the cart, create the
// backend order, run the payment sequence, and clear the cart only on
// success. On failure or cancellation the cart is left intact so the
// user can retry.
type CheckoutService struct {
	carts       *CartService
	orders      orderCreator
	adapter     *gateway.Adapter
	coordinator paymentProcessor
	logger      *slog.Logger
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(carts *CartService, orders orderCreator, adapter *gateway.Adapter, coordinator paymentProcessor, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		orders:      orders,
		adapter:     adapter,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Checkout runs the full flow for the user's current cart. It operates
// only on a snapshot taken at entry: concurrent cart edits do not affect
// the amount being charged.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, customer domain.Customer) (*CheckoutResult, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	snap, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(snap.Lines) == 0 {
		return nil, apperrors.EmptyCart()
	}

	if err := verifyTotals(snap); err != nil {
		return nil, err
	}

	session := &domain.CheckoutSession{
		AmountMinor:     snap.Totals.GrandTotal,
		Currency:        snap.Currency,
		Customer:        customer,
		MerchantOrderID: uuid.New().String(),
	}

	orderReq, err := s.adapter.BuildOrderRequest(session)
	if err != nil {
		return nil, err
	}

	gatewayOrderID, err := s.orders.Create(ctx, orderReq)
	if err != nil {
		s.logger.WarnContext(ctx, "order creation failed, aborting checkout",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	opts, err := s.adapter.BuildCheckoutOptions(session, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	result, err := s.coordinator.Process(ctx, userID, opts)
	if err != nil {
		// The cart stays intact so the user can retry manually.
		return nil, err
	}

	// Payment is collected; a failure to clear the cart must not undo
	// that outcome.
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after successful payment",
			slog.String("user_id", userID),
			slog.String("payment_id", result.PaymentID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout completed",
		slog.String("user_id", userID),
		slog.String("payment_id", result.PaymentID),
		slog.String("gateway_order_id", gatewayOrderID),
		slog.Int64("amount_minor", session.AmountMinor),
	)

	return &CheckoutResult{
		PaymentID:      result.PaymentID,
		OrderID:        session.MerchantOrderID,
		GatewayOrderID: gatewayOrderID,
	}, nil
}

// verifyTotals re-derives the snapshot totals from its lines and checks
// them against the stored values before any money moves.
func verifyTotals(snap domain.Snapshot) error {
	lines := make([]money.Line, len(snap.Lines))
	for i, l := range snap.Lines {
		lines[i] = money.Line{
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			TaxRatePercent: l.TaxRatePercent,
		}
	}

	totals, err := money.CartTotals(lines)
	if err != nil {
		return err
	}
	if totals != snap.Totals {
		return apperrors.Internal(
			apperrors.Wrap(apperrors.ErrInternal, "cart totals are inconsistent"))
	}
	return nil
}
