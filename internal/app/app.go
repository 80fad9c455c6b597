package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/platewise/cartpay/internal/client"
	"github.com/platewise/cartpay/internal/config"
	"github.com/platewise/cartpay/internal/event"
	"github.com/platewise/cartpay/internal/gateway"
	handler "github.com/platewise/cartpay/internal/handler/http"
	"github.com/platewise/cartpay/internal/payment"
	postgresrepo "github.com/platewise/cartpay/internal/repository/postgres"
	redisrepo "github.com/platewise/cartpay/internal/repository/redis"
	"github.com/platewise/cartpay/internal/service"
	"github.com/platewise/cartpay/migrations"
	"github.com/platewise/cartpay/pkg/database"
	"github.com/platewise/cartpay/pkg/health"
	"github.com/platewise/cartpay/pkg/httpclient"
	pkgkafka "github.com/platewise/cartpay/pkg/kafka"
	"github.com/platewise/cartpay/pkg/tracing"
)

// App wires together all dependencies and runs the cart and payment engine.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	rdb             *redis.Client
	pool            *pgxpool.Pool
	producer        *pkgkafka.Producer
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tracingShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  "cartpay",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRate:   cfg.OTELSampleRate,
		Enabled:      cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Redis holds the carts.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	// Postgres holds the payment attempt history.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Kafka carries the cart and payment events.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	cartRepo := redisrepo.NewCartRepository(rdb, cfg.CartTTL())
	historyRepo := postgresrepo.NewHistoryRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	cartService := service.NewCartService(
		cartRepo, eventProducer, logger, cfg.CartTTL(),
		service.CartLimits{
			MaxQuantityPerItem: cfg.MaxQuantityPerItem,
			MaxLinesPerCart:    cfg.MaxItemsPerCart,
		},
		cfg.Currency)

	// The order-creation call goes through a circuit breaker.
	orderHTTP := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.OrderRequestTimeout) * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	})
	orderCB := httpclient.NewCircuitBreakerClient(orderHTTP, httpclient.CircuitBreakerConfig{
		Name:         "order-service",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}, logger)
	orderClient := client.NewOrderClient(orderCB, cfg.OrderServiceURL, logger)

	// The checkout call blocks on the payer and must not retry at the
	// transport layer; the coordinator owns the retry loop.
	gatewayTimeout := time.Duration(cfg.GatewayRequestTimeout) * time.Second
	gatewayHTTP := httpclient.New(httpclient.Config{
		Timeout:         gatewayTimeout + 5*time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 50,
	})
	gatewayClient := gateway.NewClient(gatewayHTTP, cfg.GatewayURL, gatewayTimeout, logger)

	coordinator := payment.NewCoordinator(gatewayClient, historyRepo, eventProducer, logger, payment.Config{
		MaxRetries: cfg.PaymentRetries,
		Backoff:    cfg.PaymentBackoff(),
	})

	adapter := gateway.NewAdapter(cfg.GatewayKeyID)
	checkoutService := service.NewCheckoutService(cartService, orderClient, adapter, coordinator, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// A checkout request blocks on the payer: the budget covers every
	// gateway attempt, the backoffs between them, and order creation.
	checkoutTimeout := time.Duration(cfg.PaymentRetries+1)*gatewayTimeout +
		time.Duration(cfg.PaymentRetries)*cfg.PaymentBackoff() +
		time.Duration(cfg.OrderRequestTimeout)*time.Second +
		10*time.Second

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Cart:            handler.NewCartHandler(cartService, logger),
		Checkout:        handler.NewCheckoutHandler(checkoutService, logger),
		History:         handler.NewHistoryHandler(historyRepo, logger),
		Health:          healthHandler,
		Logger:          logger,
		CheckoutTimeout: checkoutTimeout,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: checkoutTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		rdb:             rdb,
		pool:            pool,
		producer:        producer,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(a.cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
