package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/platewise/cartpay/internal/domain"
	apperrors "github.com/platewise/cartpay/pkg/errors"
)

// OrderRequest is the body sent to the marketplace backend to create a
// gateway order. The backend answers with the gateway-issued order id.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Adapter translates a CheckoutSession into gateway-facing payloads. It is
// pure: validation happens here, before any network call.
type Adapter struct {
	keyID string
}

// NewAdapter creates an adapter bound to the gateway API key.
func NewAdapter(keyID string) *Adapter {
	return &Adapter{keyID: keyID}
}

// BuildOrderRequest validates the session and builds the backend
// order-creation request body.
func (a *Adapter) BuildOrderRequest(session *domain.CheckoutSession) (*OrderRequest, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}

	return &OrderRequest{
		Amount:   session.AmountMinor,
		Currency: session.Currency,
		Receipt:  Receipt(session),
		Notes: map[string]string{
			"merchant_order_id": session.MerchantOrderID,
		},
	}, nil
}

// BuildCheckoutOptions validates the session and builds the gateway
// checkout options for the given backend-issued gateway order id.
func (a *Adapter) BuildCheckoutOptions(session *domain.CheckoutSession, gatewayOrderID string) (CheckoutOptions, error) {
	if err := validateSession(session); err != nil {
		return CheckoutOptions{}, err
	}
	if a.keyID == "" {
		return CheckoutOptions{}, apperrors.InvalidConfiguration("gateway key is not configured")
	}
	if gatewayOrderID == "" {
		return CheckoutOptions{}, apperrors.InvalidConfiguration("gateway order id is missing")
	}

	return CheckoutOptions{
		KeyID:          a.keyID,
		GatewayOrderID: gatewayOrderID,
		AmountMinor:    session.AmountMinor,
		Currency:       session.Currency,
		Receipt:        Receipt(session),
		Customer:       session.Customer,
		AllowRetry:     true,
	}, nil
}

// Receipt derives a deterministic receipt token for the session, so the
// same checkout always presents the same idempotency token to the
// gateway.
func Receipt(session *domain.CheckoutSession) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s",
		session.MerchantOrderID, session.AmountMinor, session.Currency)))
	return "rcpt_" + hex.EncodeToString(h[:])[:24]
}

// validateSession enforces the pre-network checks: positive amount and
// non-blank customer fields.
func validateSession(session *domain.CheckoutSession) error {
	if session.AmountMinor <= 0 {
		return apperrors.InvalidConfiguration(
			fmt.Sprintf("payment amount must be positive, got %d", session.AmountMinor))
	}
	if session.Currency == "" {
		return apperrors.InvalidConfiguration("currency is required")
	}
	if strings.TrimSpace(session.Customer.Name) == "" {
		return apperrors.InvalidConfiguration("customer name is required")
	}
	if strings.TrimSpace(session.Customer.Email) == "" {
		return apperrors.InvalidConfiguration("customer email is required")
	}
	if strings.TrimSpace(session.Customer.Phone) == "" {
		return apperrors.InvalidConfiguration("customer phone is required")
	}
	return nil
}
