package httputil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/platewise/cartpay/pkg/errors"
	"github.com/platewise/cartpay/pkg/validator"
)

func testFallbackLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteError_AppErrorCarriesOwnShape(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/cart/items/dish-1", nil)

	WriteError(rec, req, apperrors.ItemNotFound("dish-1"), testFallbackLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "ITEM_NOT_FOUND", errBody.Code)
	assert.Contains(t, errBody.Message, "dish-1")
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cart/items", nil)

	err := fmt.Errorf("save cart: %w", apperrors.ErrConflict)
	WriteError(rec, req, err, testFallbackLogger())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)
}

func TestWriteError_UnknownErrorIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)

	WriteError(rec, req, fmt.Errorf("redis: connection refused"), testFallbackLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", errBody.Code)
	assert.NotContains(t, errBody.Message, "redis", "internal detail must not leak to clients")
}

func TestWriteValidationError_FieldDetail(t *testing.T) {
	type payload struct {
		Email string `validate:"required,email"`
	}
	err := validator.Validate(payload{Email: "nope"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errBody.Code)
	assert.Contains(t, errBody.Fields, "Email")
}
