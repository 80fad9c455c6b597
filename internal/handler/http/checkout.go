package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/internal/gateway"
	"github.com/platewise/cartpay/internal/service"
	"github.com/platewise/cartpay/pkg/httputil"
	"github.com/platewise/cartpay/pkg/middleware"
	"github.com/platewise/cartpay/pkg/validator"
)

// CheckoutHandler handles HTTP requests for the checkout endpoint.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// CheckoutRequest is the JSON request body for starting a checkout.
type CheckoutRequest struct {
	Customer domain.Customer `json:"customer" validate:"required"`
}

// Checkout handles POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.Checkout(r.Context(), userID, req.Customer)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// writeCheckoutError maps classified gateway failures onto the error
// envelope; everything else goes through the shared error writer.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		status := http.StatusBadGateway
		if gwErr.Code == gateway.CodeCancelled {
			// The user backed out; nothing is wrong server-side.
			status = http.StatusBadRequest
		}

		httputil.WriteJSON(w, status, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:    paymentErrorCode(gwErr.Code),
				Message: gwErr.Description,
			},
		})
		return
	}

	httputil.WriteError(w, r, err, h.logger)
}

func paymentErrorCode(code gateway.ErrorCode) string {
	switch code {
	case gateway.CodeCancelled:
		return "PAYMENT_CANCELLED"
	case gateway.CodeNetworkError:
		return "PAYMENT_NETWORK_ERROR"
	case gateway.CodeTimeout:
		return "PAYMENT_TIMEOUT"
	case gateway.CodeBadRequest:
		return "PAYMENT_BAD_REQUEST"
	default:
		return "PAYMENT_FAILED"
	}
}
