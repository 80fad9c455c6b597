// Package httputil renders the JSON envelope every endpoint answers
// with: {"data": ...} on success, {"error": ...} on failure.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/platewise/cartpay/pkg/errors"
	"github.com/platewise/cartpay/pkg/logger"
	"github.com/platewise/cartpay/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

// sentinelCodes maps bare sentinel errors, ones not already wrapped in
// an AppError, to their envelope code. Order matters: first match wins.
var sentinelCodes = []struct {
	sentinel   error
	code       string
	useMessage bool
}{
	{apperrors.ErrNotFound, "NOT_FOUND", false},
	{apperrors.ErrInvalidInput, "INVALID_INPUT", true},
	{apperrors.ErrConflict, "CONFLICT", true},
}

// WriteError renders err as the standard error envelope. An AppError
// carries its own code, message, and status; bare sentinels map through
// sentinelCodes; everything else is an opaque 500, logged with the
// request-scoped logger when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeErrorBody(w, appErr.Status, appErr.Code, appErr.Message, requestID)
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"
	for _, m := range sentinelCodes {
		if errors.Is(err, m.sentinel) {
			code = m.code
			if m.useMessage {
				message = err.Error()
			} else {
				message = m.sentinel.Error()
			}
			break
		}
	}

	if status == http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeErrorBody(w, status, code, message, requestID)
}

// WriteValidationError renders a 400 with per-field detail when err is
// a *validator.ValidationError.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
