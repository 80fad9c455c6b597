package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/platewise/cartpay/internal/gateway"
	apperrors "github.com/platewise/cartpay/pkg/errors"
	"github.com/platewise/cartpay/pkg/httpclient"
)

// orderResponse is the marketplace backend's success-boolean envelope.
type orderResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID string `json:"id"`
	} `json:"data"`
	Message string `json:"message"`
}

// OrderClient creates gateway orders through the marketplace backend. The
// call goes through a circuit breaker so a failing backend stops being
// hammered during checkout spikes.
type OrderClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewOrderClient creates a backend order client.
func NewOrderClient(http *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *OrderClient {
	return &OrderClient{
		http:    http,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Create posts the order-creation request and returns the gateway-issued
// order id. Any transport failure, non-2xx status, or non-success
// envelope is OrderCreationFailed: checkout aborts before the gateway.
func (c *OrderClient) Create(ctx context.Context, req *gateway.OrderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/api/v1/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		c.logger.ErrorContext(ctx, "backend order call failed",
			slog.String("error", err.Error()),
		)
		return "", apperrors.OrderCreationFailed("backend order call failed: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperrors.OrderCreationFailed(
			fmt.Sprintf("backend returned status %d", resp.StatusCode))
	}

	var envelope orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", apperrors.OrderCreationFailed("malformed backend response: " + err.Error())
	}

	if !envelope.Success || envelope.Data.ID == "" {
		msg := envelope.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return "", apperrors.OrderCreationFailed(msg)
	}

	return envelope.Data.ID, nil
}
