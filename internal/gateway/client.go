package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/platewise/cartpay/pkg/httpclient"
)

// checkoutResponse is the wire shape of the hosted checkout endpoint. A
// completed payment carries payment_id and signature; a failure carries
// the error block instead.
type checkoutResponse struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"order_id"`
	Signature      string `json:"signature"`
	Error          *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Client talks to the hosted checkout API over HTTP. A checkout call
// blocks until the payer completes or abandons the flow, so the per-call
// timeout is much longer than a normal service call.
//
// The underlying HTTP client must not retry on its own: the payment
// coordinator owns the retry loop and records one history entry per
// attempt.
type Client struct {
	http    *httpclient.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a hosted checkout client.
func NewClient(http *httpclient.Client, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:    http,
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}
}

// Checkout posts one payment attempt and blocks for the outcome. Every
// failure is returned as a classified *Error.
func (c *Client) Checkout(ctx context.Context, opts CheckoutOptions) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(opts)
	if err != nil {
		return nil, &Error{Code: CodeBadRequest, Description: "marshal checkout options: " + err.Error()}
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/v1/checkout", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, ClassifyErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyErr(err)
	}

	var result checkoutResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, Classify(
				fmt.Sprintf("http_%d", resp.StatusCode),
				fmt.Sprintf("gateway returned status %d", resp.StatusCode),
			)
		}
		return nil, &Error{Code: CodeUnknown, Description: "malformed gateway response: " + err.Error()}
	}

	if result.Error != nil {
		c.logger.WarnContext(ctx, "gateway reported checkout failure",
			slog.String("code", result.Error.Code),
			slog.String("order_id", opts.GatewayOrderID),
		)
		return nil, Classify(result.Error.Code, result.Error.Description)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, Classify(
			fmt.Sprintf("http_%d", resp.StatusCode),
			fmt.Sprintf("gateway returned status %d", resp.StatusCode),
		)
	}

	if result.PaymentID == "" {
		return nil, &Error{Code: CodeUnknown, Description: "gateway response is missing payment_id"}
	}

	return &Result{
		PaymentID:      result.PaymentID,
		GatewayOrderID: result.GatewayOrderID,
		Signature:      result.Signature,
	}, nil
}
