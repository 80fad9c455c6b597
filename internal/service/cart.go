package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/internal/event"
	"github.com/platewise/cartpay/internal/repository"
	apperrors "github.com/platewise/cartpay/pkg/errors"
)

// AddItemInput holds the parameters for adding a line to the cart.
type AddItemInput struct {
	ID             string          `json:"id" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	UnitPrice      int64           `json:"unit_price" validate:"gte=0"`
	Quantity       int             `json:"quantity" validate:"gte=0"`
	SellerID       string          `json:"seller_id" validate:"required"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
}

// CartLimits bounds the size of a single cart. A zero value disables the
// corresponding ceiling.
type CartLimits struct {
	// MaxQuantityPerItem caps the quantity of any single line.
	MaxQuantityPerItem int
	// MaxLinesPerCart caps the number of distinct lines. Merging into an
	// existing line never counts against it.
	MaxLinesPerCart int
}

// CartService implements the cart operations on top of the versioned
// repository. Concurrent edits to the same cart are serialized by
// optimistic locking: a lost race surfaces as a Conflict the client
// simply retries.
type CartService struct {
	repo     repository.CartRepository
	events   event.Publisher
	logger   *slog.Logger
	cartTTL  time.Duration
	limits   CartLimits
	currency string
}

// NewCartService creates a cart service.
func NewCartService(repo repository.CartRepository, events event.Publisher, logger *slog.Logger, cartTTL time.Duration, limits CartLimits, currency string) *CartService {
	return &CartService{
		repo:     repo,
		events:   events,
		logger:   logger,
		cartTTL:  cartTTL,
		limits:   limits,
		currency: currency,
	}
}

// GetCart returns the user's cart, or a fresh empty cart if none exists.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// AddItem adds a line to the user's cart, merging by item id. A quantity
// of 0 is a no-op that returns the cart unchanged.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}
	if input.SellerID == "" {
		return nil, apperrors.InvalidInput("seller id is required")
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Quantity == 0 {
		return cart, nil
	}

	if s.limits.MaxLinesPerCart > 0 && !cart.HasLine(input.ID) && len(cart.Lines) >= s.limits.MaxLinesPerCart {
		return nil, apperrors.CartLimitExceeded(s.limits.MaxLinesPerCart)
	}

	expectedVersion := cart.Version

	line := domain.CartLine{
		ID:             input.ID,
		Name:           input.Name,
		UnitPrice:      input.UnitPrice,
		Quantity:       input.Quantity,
		SellerID:       input.SellerID,
		TaxRatePercent: input.TaxRatePercent,
	}
	if err := cart.AddLine(line, s.limits.MaxQuantityPerItem); err != nil {
		return nil, err
	}

	if err := s.persist(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("item_id", input.ID),
		slog.String("seller_id", input.SellerID),
		slog.Int("quantity", input.Quantity),
		slog.Int64("grand_total", cart.Totals.GrandTotal),
	)

	return cart, nil
}

// RemoveItem decrements the line's quantity by delta. A delta of 0, or
// one at or above the line's current quantity, drops the line entirely.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string, delta int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ItemNotFound(itemID)
		}
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}

	expectedVersion := cart.Version

	if err := cart.RemoveLine(itemID, delta); err != nil {
		return nil, err
	}

	if err := s.persist(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("item_id", itemID),
		slog.Int("delta", delta),
	)

	return cart, nil
}

// ClearCart empties the user's cart. Clearing an absent cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if err := s.events.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

// Snapshot returns an immutable view of the user's cart for checkout.
func (s *CartService) Snapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return cart.Snapshot(), nil
}

func (s *CartService) persist(ctx context.Context, cart *domain.Cart, expectedVersion int) error {
	now := time.Now().UTC()
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(s.cartTTL)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}
	return nil
}

func (s *CartService) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.events.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		Lines:     []domain.CartLine{},
		Currency:  s.currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}
