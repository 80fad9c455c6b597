package repository

import (
	"context"

	"github.com/platewise/cartpay/internal/domain"
)

// CartRepository persists carts keyed by user ID.
type CartRepository interface {
	// Get returns the cart for a user, or a NotFound error.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save unconditionally persists the cart with the configured TTL.
	Save(ctx context.Context, cart *domain.Cart) error

	// SaveIfVersion persists the cart only if the stored version still
	// matches expectedVersion, incrementing the version on success.
	// Returns false without error on a version mismatch.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes the cart. Deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) error
}

// PaymentHistoryRepository is the append-only audit log of payment
// attempts. Records are never updated or deleted by this engine.
type PaymentHistoryRepository interface {
	// Append records one attempt.
	Append(ctx context.Context, attempt *domain.PaymentAttempt) error

	// ListRecent returns a user's most recent attempts, newest first,
	// for diagnostics.
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.PaymentAttempt, error)
}
