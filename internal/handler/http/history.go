package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/platewise/cartpay/internal/repository"
	"github.com/platewise/cartpay/pkg/httputil"
	"github.com/platewise/cartpay/pkg/middleware"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler serves the payment attempt history endpoint.
type HistoryHandler struct {
	history repository.PaymentHistoryRepository
	logger  *slog.Logger
}

// NewHistoryHandler creates a payment history HTTP handler.
func NewHistoryHandler(history repository.PaymentHistoryRepository, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logger,
	}
}

// ListRecent handles GET /api/v1/payments/history?limit=n
func (h *HistoryHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed <= 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "limit must be a positive integer"},
			})
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	attempts, err := h.history.ListRecent(r.Context(), userID, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempts})
}
