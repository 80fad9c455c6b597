package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/platewise/cartpay/internal/domain"
)

// ErrorCode is the engine's fixed classification of gateway failures.
type ErrorCode string

const (
	CodeCancelled    ErrorCode = "Cancelled"
	CodeNetworkError ErrorCode = "NetworkError"
	CodeBadRequest   ErrorCode = "BadRequest"
	CodeTimeout      ErrorCode = "Timeout"
	CodeUnknown      ErrorCode = "Unknown"
)

// Error is a classified gateway failure. Cancellation is the user backing
// out of the checkout; everything else is a gateway or transport fault.
type Error struct {
	Code        ErrorCode
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Code, e.Description)
}

// Retryable reports whether the failure may be retried automatically.
// Cancellation is terminal.
func (e *Error) Retryable() bool {
	return e.Code != CodeCancelled
}

// CheckoutOptions is everything the gateway needs to collect a payment.
// Built once per attempt sequence by the adapter; validated before any
// network call.
type CheckoutOptions struct {
	KeyID          string          `json:"key"`
	GatewayOrderID string          `json:"order_id"`
	AmountMinor    int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Receipt        string          `json:"receipt"`
	Customer       domain.Customer `json:"prefill"`
	AllowRetry     bool            `json:"retry"`
}

// Result is a successful gateway checkout.
type Result struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"order_id,omitempty"`
	Signature      string `json:"signature,omitempty"`
}

// Gateway is the external payment processor. Checkout blocks until the
// payer completes, cancels, or the gateway errors; failures are returned
// as a classified *Error.
type Gateway interface {
	Checkout(ctx context.Context, opts CheckoutOptions) (*Result, error)
}

// Classify maps a gateway-reported error code and description into a
// classified Error. Unrecognized codes become Unknown.
func Classify(rawCode, description string) *Error {
	code := strings.ToLower(rawCode)
	desc := strings.ToLower(description)

	classified := CodeUnknown
	switch {
	case strings.Contains(code, "cancel") || strings.Contains(desc, "cancelled by user"):
		classified = CodeCancelled
	case strings.Contains(code, "network") || strings.Contains(code, "connection"):
		classified = CodeNetworkError
	case strings.Contains(code, "timeout") || strings.Contains(desc, "timed out"):
		classified = CodeTimeout
	case strings.Contains(code, "bad_request") || strings.Contains(code, "invalid"):
		classified = CodeBadRequest
	}

	return &Error{Code: classified, Description: description}
}

// ClassifyErr maps an arbitrary error from a gateway invocation into a
// classified Error. Already-classified errors pass through unchanged.
func ClassifyErr(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Description: err.Error()}
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCancelled, Description: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Code: CodeTimeout, Description: err.Error()}
		}
		return &Error{Code: CodeNetworkError, Description: err.Error()}
	}

	return &Error{Code: CodeUnknown, Description: err.Error()}
}
