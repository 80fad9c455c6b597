package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/platewise/cartpay/pkg/config"
)

// Config holds all configuration for the cart and payment engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int `env:"CARTPAY_HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout int `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`

	// Redis (cart storage)
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	CartTTLHours  int    `env:"CART_TTL_HOURS" envDefault:"72"`

	// Cart limits. MaxQuantityPerItem of 0 disables the ceiling.
	MaxQuantityPerItem int `env:"CART_MAX_QUANTITY_PER_ITEM" envDefault:"100"`
	MaxItemsPerCart    int `env:"CART_MAX_ITEMS" envDefault:"50"`

	// PostgreSQL (payment attempt history)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"cartpay"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"cartpay_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"cartpay_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Marketplace backend (order creation)
	OrderServiceURL     string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`
	OrderRequestTimeout int    `env:"ORDER_REQUEST_TIMEOUT_SECONDS" envDefault:"10"`

	// Payment gateway
	GatewayURL            string `env:"GATEWAY_URL" envDefault:"https://checkout.gateway.local"`
	GatewayKeyID          string `env:"GATEWAY_KEY_ID" envDefault:""`
	GatewayRequestTimeout int    `env:"GATEWAY_REQUEST_TIMEOUT_SECONDS" envDefault:"120"`
	Currency              string `env:"CURRENCY" envDefault:"INR"`
	PaymentRetries        int    `env:"PAYMENT_MAX_RETRIES" envDefault:"3"`
	PaymentBackoffMs      int    `env:"PAYMENT_RETRY_BACKOFF_MS" envDefault:"1000"`

	// Circuit breaker for the order-creation call
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cartpay config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.PaymentRetries < 0 {
		return fmt.Errorf("PAYMENT_MAX_RETRIES must not be negative, got %d", c.PaymentRetries)
	}
	if c.PaymentBackoffMs < 0 {
		return fmt.Errorf("PAYMENT_RETRY_BACKOFF_MS must not be negative, got %d", c.PaymentBackoffMs)
	}
	if c.MaxQuantityPerItem < 0 {
		return fmt.Errorf("CART_MAX_QUANTITY_PER_ITEM must not be negative, got %d", c.MaxQuantityPerItem)
	}
	if c.MaxItemsPerCart < 0 {
		return fmt.Errorf("CART_MAX_ITEMS must not be negative, got %d", c.MaxItemsPerCart)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.OrderServiceURL == "" {
		return fmt.Errorf("ORDER_SERVICE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.OrderServiceURL); err != nil {
		return fmt.Errorf("invalid ORDER_SERVICE_URL %q: %w", c.OrderServiceURL, err)
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("invalid GATEWAY_URL %q: %w", c.GatewayURL, err)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// CartTTL returns the cart expiry as a duration.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// PaymentBackoff returns the fixed delay between payment retries.
func (c *Config) PaymentBackoff() time.Duration {
	return time.Duration(c.PaymentBackoffMs) * time.Millisecond
}
