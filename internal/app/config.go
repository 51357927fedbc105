package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PAY_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PAY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	Checkout CheckoutConfig
	Payments PaymentsConfig
	Remote   RemoteConfig
	Kafka    KafkaConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CheckoutConfig controls snapshot capture amounts. Monetary values are in
// minor units of the configured currency.
type CheckoutConfig struct {
	Currency       string `default:"INR" usage:"Currency for all captured amounts"`
	TaxRateBP      int64  `default:"1000" usage:"Tax rate in basis points applied to the subtotal" flag:"tax-rate-bp"`
	ShippingFee    int64  `default:"5000" usage:"Flat shipping fee in minor units" flag:"shipping-fee"`
	PriceTolerance int64  `default:"0" usage:"Allowed cart/catalog price drift in minor units" flag:"price-tolerance"`
}

// PaymentsConfig controls the payment lifecycle.
type PaymentsConfig struct {
	GatewaySecret string        `usage:"HMAC secret for gateway confirmation signatures (PAY_PAYMENTS_GATEWAY_SECRET)" flag:"gateway-secret"`
	TTL           time.Duration `default:"30m" usage:"How long a created payment may stay unconfirmed" flag:"payment-ttl"`
	SweepInterval time.Duration `default:"1m" usage:"How often to sweep for abandoned payments" flag:"sweep-interval"`
}

// RemoteConfig points at the external services the engine talks to. SMSURL
// may be left empty for local development; OTPs are then dropped with a log
// line instead of sent.
type RemoteConfig struct {
	GatewayURL   string        `usage:"Payment gateway base URL" flag:"gateway-url"`
	WalletURL    string        `usage:"Wallet provider base URL" flag:"wallet-url"`
	CatalogURL   string        `usage:"Product catalog base URL" flag:"catalog-url"`
	DirectoryURL string        `default:"" usage:"User directory base URL (empty: use local store)" flag:"directory-url"`
	SMSURL       string        `default:"" usage:"SMS gateway base URL (empty: drop OTPs)" flag:"sms-url"`
	SMSSender    string        `default:"PAYMNT" usage:"Registered SMS sender id" flag:"sms-sender"`
	Timeout      time.Duration `default:"5s" usage:"Per-call timeout for remote services" flag:"remote-timeout"`
}

// KafkaConfig controls order event publishing. With no brokers configured the
// notifier is a no-op.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses (empty: events disabled)"`
	Topic   string   `default:"orders.created" usage:"Topic for order created events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PAY",
		Files:     []string{"config.yaml", "/etc/pay/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	switch {
	case cfg.DatabaseURL == "":
		return nil, errors.New("database URL is required: set PAY_DATABASE_URL or DATABASE_URL")
	case cfg.Payments.GatewaySecret == "":
		return nil, errors.New("gateway secret is required: set PAY_PAYMENTS_GATEWAY_SECRET")
	case cfg.Remote.GatewayURL == "":
		return nil, errors.New("gateway URL is required: set PAY_REMOTE_GATEWAY_URL")
	case cfg.Remote.WalletURL == "":
		return nil, errors.New("wallet URL is required: set PAY_REMOTE_WALLET_URL")
	case cfg.Remote.CatalogURL == "":
		return nil, errors.New("catalog URL is required: set PAY_REMOTE_CATALOG_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PAY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
