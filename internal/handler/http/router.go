package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platewise/cartpay/pkg/health"
	"github.com/platewise/cartpay/pkg/middleware"
)

// defaultRequestTimeout bounds ordinary cart and history requests.
// Checkout is excluded: it blocks on the payer and carries its own budget.
const defaultRequestTimeout = 30 * time.Second

// RouterConfig groups the handlers and shared infrastructure the router wires up.
type RouterConfig struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	History  *HistoryHandler
	Health   *health.Handler
	Logger   *slog.Logger

	// CheckoutTimeout caps a single checkout request. It must cover the
	// whole payment sequence, gateway waits and retry backoffs included.
	// Zero falls back to defaultRequestTimeout.
	CheckoutTimeout time.Duration
}

// NewRouter builds the HTTP router with the full middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	checkoutTimeout := cfg.CheckoutTimeout
	if checkoutTimeout <= 0 {
		checkoutTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("cartpay"))
	r.Use(middleware.Tracing("cartpay"))
	r.Use(middleware.RequestLogger(cfg.Logger))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ContentTypeJSON)
		api.Use(middleware.RequireUser)

		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(defaultRequestTimeout))

			g.Route("/cart", func(cart chi.Router) {
				cart.Get("/", cfg.Cart.GetCart)
				cart.Delete("/", cfg.Cart.ClearCart)
				cart.Post("/items", cfg.Cart.AddItem)
				cart.Delete("/items/{itemID}", cfg.Cart.RemoveItem)
			})

			g.Get("/payments/history", cfg.History.ListRecent)
		})

		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(checkoutTimeout))

			g.Post("/checkout", cfg.Checkout.Checkout)
		})
	})

	return r
}
