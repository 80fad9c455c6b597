package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/internal/event"
	"github.com/platewise/cartpay/internal/gateway"
	redisrepo "github.com/platewise/cartpay/internal/repository/redis"
	"github.com/platewise/cartpay/internal/service"
	"github.com/platewise/cartpay/pkg/health"
	"github.com/platewise/cartpay/pkg/middleware"
)

// --- Test doubles ---

type stubOrders struct {
	id    string
	err   error
	calls int
}

func (s *stubOrders) Create(ctx context.Context, req *gateway.OrderRequest) (string, error) {
	s.calls++
	return s.id, s.err
}

type stubProcessor struct {
	result      *gateway.Result
	err         error
	calls       int
	deadline    time.Time
	hasDeadline bool
}

func (s *stubProcessor) Process(ctx context.Context, userID string, opts gateway.CheckoutOptions) (*gateway.Result, error) {
	s.calls++
	s.deadline, s.hasDeadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// deadlineRecorder captures the request-context deadline seen by cart
// mutations, via the event publisher the service calls on every save.
type deadlineRecorder struct {
	event.NopPublisher
	deadline    time.Time
	hasDeadline bool
}

func (d *deadlineRecorder) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	d.deadline, d.hasDeadline = ctx.Deadline()
	return nil
}

type memHistory struct {
	attempts []domain.PaymentAttempt
}

func (m *memHistory) Append(ctx context.Context, attempt *domain.PaymentAttempt) error {
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memHistory) ListRecent(ctx context.Context, userID string, limit int) ([]domain.PaymentAttempt, error) {
	out := make([]domain.PaymentAttempt, 0, limit)
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].UserID == userID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

// --- Harness ---

type testEnv struct {
	router     http.Handler
	orders     *stubOrders
	processor  *stubProcessor
	history    *memHistory
	cartEvents *deadlineRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	repo := redisrepo.NewCartRepository(client, time.Hour)
	cartEvents := &deadlineRecorder{}
	limits := service.CartLimits{MaxQuantityPerItem: 100, MaxLinesPerCart: 50}
	carts := service.NewCartService(repo, cartEvents, logger, time.Hour, limits, "INR")

	orders := &stubOrders{id: "gw-order-1"}
	processor := &stubProcessor{result: &gateway.Result{PaymentID: "pay-1", GatewayOrderID: "gw-order-1"}}
	checkout := service.NewCheckoutService(carts, orders, gateway.NewAdapter("key_test"), processor, logger)

	history := &memHistory{}

	router := NewRouter(RouterConfig{
		Cart:            NewCartHandler(carts, logger),
		Checkout:        NewCheckoutHandler(checkout, logger),
		History:         NewHistoryHandler(history, logger),
		Health:          health.NewHandler(),
		Logger:          logger,
		CheckoutTimeout: 10 * time.Minute,
	})

	return &testEnv{
		router:     router,
		orders:     orders,
		processor:  processor,
		history:    history,
		cartEvents: cartEvents,
	}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserHeader, userID)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func addItemBody() map[string]any {
	return map[string]any{
		"id":               "dish-1",
		"name":             "Paneer Tikka",
		"unit_price":       100,
		"quantity":         2,
		"seller_id":        "shop-1",
		"tax_rate_percent": "5",
	}
}

func checkoutBody() map[string]any {
	return map[string]any{
		"customer": map[string]any{
			"name":  "Asha Rao",
			"email": "asha@example.com",
			"phone": "+919876543210",
		},
	}
}

// --- Cart endpoints ---

func TestRouter_GetCart_EmptyForNewUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, "INR", cart.Currency)
}

func TestRouter_AddItem_ThenGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(200), cart.Totals.Subtotal)
	assert.Equal(t, int64(10), cart.Totals.TotalTax)
	assert.Equal(t, int64(210), cart.Totals.GrandTotal)
}

func TestRouter_AddItem_MissingUserHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "", addItemBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_USER", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_AddItem_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserHeader, "u1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_AddItem_ValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	body := addItemBody()
	delete(body, "seller_id")

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeEnvelope(t, rec).Error
	require.NotNil(t, errBody)
	assert.Equal(t, "VALIDATION_ERROR", errBody.Code)
	assert.Contains(t, errBody.Fields, "SellerID")
}

func TestRouter_AddItem_CrossSellerConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	body := addItemBody()
	body["id"] = "dish-9"
	body["seller_id"] = "shop-2"

	rec = env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CROSS_SELLER_CONFLICT", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_AddItem_UnsupportedContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("id=dish-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.UserHeader, "u1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RemoveItem_Decrement(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/dish-1?quantity=1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 1, cart.Lines[0].Quantity)
	assert.Equal(t, int64(105), cart.Totals.GrandTotal)
}

func TestRouter_RemoveItem_WholeLineWithoutQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/dish-1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	assert.True(t, cart.IsEmpty())
}

func TestRouter_RemoveItem_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/missing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RemoveItem_InvalidQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/dish-1?quantity=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ClearCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", "u1", nil)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	assert.True(t, cart.IsEmpty())
}

// --- Checkout endpoint ---

func TestRouter_Checkout_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/checkout", "u1", checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result service.CheckoutResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, "gw-order-1", result.GatewayOrderID)
	assert.NotEmpty(t, result.OrderID)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", "u1", nil)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	assert.True(t, cart.IsEmpty())
}

func TestRouter_Checkout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", "u1", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMPTY_CART", decodeEnvelope(t, rec).Error.Code)
	assert.Zero(t, env.orders.calls)
}

func TestRouter_Checkout_InvalidCustomer(t *testing.T) {
	env := newTestEnv(t)

	body := checkoutBody()
	body["customer"].(map[string]any)["email"] = "not-an-email"

	rec := env.do(t, http.MethodPost, "/api/v1/checkout", "u1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code)
	assert.Zero(t, env.orders.calls)
}

func TestRouter_Checkout_PaymentFailed(t *testing.T) {
	env := newTestEnv(t)
	env.processor.err = &gateway.Error{Code: gateway.CodeNetworkError, Description: "connection dropped"}

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/checkout", "u1", checkoutBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PAYMENT_NETWORK_ERROR", decodeEnvelope(t, rec).Error.Code)

	// The cart survives the failed attempt.
	rec = env.do(t, http.MethodGet, "/api/v1/cart", "u1", nil)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cart))
	assert.False(t, cart.IsEmpty())
}

func TestRouter_Checkout_PaymentCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.processor.err = &gateway.Error{Code: gateway.CodeCancelled, Description: "cancelled by user"}

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/checkout", "u1", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PAYMENT_CANCELLED", decodeEnvelope(t, rec).Error.Code)
}

func TestRouter_Checkout_OutlivesDefaultRequestTimeout(t *testing.T) {
	env := newTestEnv(t)

	addStart := time.Now()
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", addItemBody())
	require.Equal(t, http.StatusOK, rec.Code)

	// Cart mutations stay under the default per-request budget.
	require.True(t, env.cartEvents.hasDeadline)
	assert.LessOrEqual(t, env.cartEvents.deadline.Sub(addStart), 31*time.Second)

	checkoutStart := time.Now()
	rec = env.do(t, http.MethodPost, "/api/v1/checkout", "u1", checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The payment sequence must keep its context alive well past the
	// default budget; a payer can take minutes to approve.
	require.True(t, env.processor.hasDeadline)
	assert.Greater(t, env.processor.deadline.Sub(checkoutStart), time.Minute)
}

func TestRouter_AddItem_DistinctLineLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 50; i++ {
		body := addItemBody()
		body["id"] = "dish-" + strconv.Itoa(i)
		rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	body := addItemBody()
	body["id"] = "dish-50"
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CART_LIMIT_EXCEEDED", decodeEnvelope(t, rec).Error.Code)
}

// --- History endpoint ---

func TestRouter_PaymentHistory(t *testing.T) {
	env := newTestEnv(t)

	for _, a := range []domain.PaymentAttempt{
		{ID: "a1", UserID: "u1", Status: domain.AttemptFailed, AttemptNumber: 1, AmountMinor: 210, Currency: "INR"},
		{ID: "a2", UserID: "u1", Status: domain.AttemptSucceeded, AttemptNumber: 2, AmountMinor: 210, Currency: "INR"},
		{ID: "a3", UserID: "u2", Status: domain.AttemptSucceeded, AttemptNumber: 1, AmountMinor: 99, Currency: "INR"},
	} {
		require.NoError(t, env.history.Append(context.Background(), &a))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/payments/history", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var attempts []domain.PaymentAttempt
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &attempts))
	require.Len(t, attempts, 2)
	assert.Equal(t, "a2", attempts[0].ID)
	assert.Equal(t, "a1", attempts[1].ID)
}

func TestRouter_PaymentHistory_LimitValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/payments/history?limit=0", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/payments/history?limit=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Operational endpoints ---

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
