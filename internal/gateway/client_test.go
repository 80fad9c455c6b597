package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/pkg/httpclient"
)

func clientTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func clientTestOpts() CheckoutOptions {
	return CheckoutOptions{
		KeyID:          "key_test",
		GatewayOrderID: "gw-order-1",
		AmountMinor:    210,
		Currency:       "INR",
		Receipt:        "rcpt_abc",
		Customer: domain.Customer{
			Name:  "Asha Rao",
			Email: "asha@example.com",
			Phone: "+919876543210",
		},
		AllowRetry: true,
	}
}

func newCheckoutClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// Retries belong to the payment coordinator, not the transport.
	httpClient := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 10,
	})
	return NewClient(httpClient, server.URL, 2*time.Second, clientTestLogger())
}

func TestClient_Checkout_Success(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var opts CheckoutOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		assert.Equal(t, int64(210), opts.AmountMinor)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"payment_id": "pay-1",
			"order_id":   opts.GatewayOrderID,
			"signature":  "sig-1",
		})
	})

	result, err := client.Checkout(context.Background(), clientTestOpts())
	require.NoError(t, err)
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, "gw-order-1", result.GatewayOrderID)
	assert.Equal(t, "sig-1", result.Signature)
}

func TestClient_Checkout_GatewayErrorClassified(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":        "payment_cancelled",
				"description": "Payment cancelled by user",
			},
		})
	})

	_, err := client.Checkout(context.Background(), clientTestOpts())
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, CodeCancelled, gwErr.Code)
	assert.False(t, gwErr.Retryable())
}

func TestClient_Checkout_ServerErrorStatus(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Checkout(context.Background(), clientTestOpts())
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, CodeUnknown, gwErr.Code)
	assert.True(t, gwErr.Retryable())
}

func TestClient_Checkout_Timeout(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect:
		// with unread request body the server never starts its
		// background read, and r.Context() is only cancelled once the
		// connection close is observed.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	client.timeout = 50 * time.Millisecond

	_, err := client.Checkout(context.Background(), clientTestOpts())
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, CodeTimeout, gwErr.Code)
}

func TestClient_Checkout_MalformedResponse(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := client.Checkout(context.Background(), clientTestOpts())
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, CodeUnknown, gwErr.Code)
}

func TestClient_Checkout_MissingPaymentID(t *testing.T) {
	client := newCheckoutClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"order_id": "gw-order-1"})
	})

	_, err := client.Checkout(context.Background(), clientTestOpts())
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, CodeUnknown, gwErr.Code)
}
