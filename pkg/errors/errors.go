package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Cart-side failures are locally recoverable: the
// operation returns one of these and leaves the cart unchanged. Checkout
// precondition failures are terminal for the current attempt.
var (
	// Generic sentinels shared by repositories and transport.
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")

	// Cart-side.
	ErrCrossSellerConflict = errors.New("cart holds items from another seller")
	ErrItemNotFound        = errors.New("cart item not found")
	ErrQuantityLimit       = errors.New("quantity limit exceeded")
	ErrCartLimit           = errors.New("cart line limit exceeded")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Checkout preconditions.
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidConfiguration = errors.New("invalid payment configuration")
	ErrPaymentInProgress    = errors.New("a payment is already in progress")
	ErrOrderCreationFailed  = errors.New("backend order creation failed")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// CrossSellerConflict signals an add of a different seller's item into a
// non-empty cart. The cart is left untouched; the user may clear it first.
func CrossSellerConflict(cartSeller, lineSeller string) *AppError {
	return &AppError{
		Code:    "CROSS_SELLER_CONFLICT",
		Message: fmt.Sprintf("cart holds items from seller %s; cannot add items from seller %s", cartSeller, lineSeller),
		Status:  http.StatusConflict,
		Err:     ErrCrossSellerConflict,
	}
}

// ItemNotFound signals a remove of an id that is not in the cart.
func ItemNotFound(itemID string) *AppError {
	return &AppError{
		Code:    "ITEM_NOT_FOUND",
		Message: fmt.Sprintf("item %s is not in the cart", itemID),
		Status:  http.StatusNotFound,
		Err:     ErrItemNotFound,
	}
}

// QuantityLimitExceeded signals an add that would push a line past the
// configured maximum-quantity ceiling.
func QuantityLimitExceeded(itemID string, limit int) *AppError {
	return &AppError{
		Code:    "QUANTITY_LIMIT_EXCEEDED",
		Message: fmt.Sprintf("item %s would exceed the maximum quantity of %d", itemID, limit),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrQuantityLimit,
	}
}

// CartLimitExceeded signals an add that would push the cart past the
// configured maximum number of distinct lines. Merging into an existing
// line is always allowed.
func CartLimitExceeded(limit int) *AppError {
	return &AppError{
		Code:    "CART_LIMIT_EXCEEDED",
		Message: fmt.Sprintf("cart cannot hold more than %d distinct items", limit),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrCartLimit,
	}
}

// InvalidAmount signals a negative price or quantity.
func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:    "INVALID_AMOUNT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidAmount,
	}
}

// EmptyCart signals a checkout attempted against an empty cart.
func EmptyCart() *AppError {
	return &AppError{
		Code:    "EMPTY_CART",
		Message: "cannot check out an empty cart",
		Status:  http.StatusBadRequest,
		Err:     ErrEmptyCart,
	}
}

// InvalidConfiguration signals missing or invalid gateway options. This is
// terminal for the attempt: no retry, and the gateway is never contacted.
func InvalidConfiguration(message string) *AppError {
	return &AppError{
		Code:    "INVALID_CONFIGURATION",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrInvalidConfiguration,
	}
}

// PaymentAlreadyInProgress signals a second payment attempt while one is
// in flight. Fails fast without contacting the gateway.
func PaymentAlreadyInProgress() *AppError {
	return &AppError{
		Code:    "PAYMENT_ALREADY_IN_PROGRESS",
		Message: "a payment is already in progress; wait for it to finish",
		Status:  http.StatusConflict,
		Err:     ErrPaymentInProgress,
	}
}

// OrderCreationFailed signals a non-success envelope from the backend order
// call. Checkout aborts before any gateway interaction.
func OrderCreationFailed(message string) *AppError {
	return &AppError{
		Code:    "ORDER_CREATION_FAILED",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     ErrOrderCreationFailed,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCrossSellerConflict), errors.Is(err, ErrPaymentInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrQuantityLimit), errors.Is(err, ErrCartLimit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrOrderCreationFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
