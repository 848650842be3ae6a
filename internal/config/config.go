// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

type PostgresConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers []string
}

// Enabled reports whether events should be published at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

type CheckoutConfig struct {
	Currency       string
	MinOrderAmount decimal.Decimal
}

type AuthConfig struct {
	JWTSecret string
}

type UpstreamConfig struct {
	StorefrontURL string
	AdminURL      string
}

type Config struct {
	Port          string
	PublicBaseURL string
	Postgres      PostgresConfig
	Kafka         KafkaConfig
	Razorpay      RazorpayConfig
	Checkout      CheckoutConfig
	Auth          AuthConfig
	Upstream      UpstreamConfig
}

// Load reads the environment. defaultPort is used when PORT is unset so each
// binary keeps its own default.
func Load(defaultPort string) (*Config, error) {
	minAmount, err := decimal.NewFromString(getenv("MIN_ORDER_AMOUNT", "1.00"))
	if err != nil {
		return nil, fmt.Errorf("MIN_ORDER_AMOUNT: %w", err)
	}
	if !minAmount.IsPositive() {
		return nil, fmt.Errorf("MIN_ORDER_AMOUNT must be positive, got %s", minAmount)
	}

	port := getenv("PORT", defaultPort)

	return &Config{
		Port:          port,
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:"+port),
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
		},
		Razorpay: RazorpayConfig{
			BaseURL:   os.Getenv("RAZORPAY_BASE_URL"),
			KeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		},
		Checkout: CheckoutConfig{
			Currency:       strings.ToUpper(getenv("DEFAULT_CURRENCY", "INR")),
			MinOrderAmount: minAmount,
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Upstream: UpstreamConfig{
			StorefrontURL: os.Getenv("STOREFRONT_SERVICE_URL"),
			AdminURL:      os.Getenv("ADMIN_SERVICE_URL"),
		},
	}, nil
}

// Require returns an error naming every listed variable that is empty.
func (c *Config) Require(names ...string) error {
	values := map[string]string{
		"POSTGRES_URL":           c.Postgres.URL,
		"KAFKA_BROKERS":          strings.Join(c.Kafka.Brokers, ","),
		"RAZORPAY_KEY_ID":        c.Razorpay.KeyID,
		"RAZORPAY_KEY_SECRET":    c.Razorpay.KeySecret,
		"JWT_SECRET":             c.Auth.JWTSecret,
		"STOREFRONT_SERVICE_URL": c.Upstream.StorefrontURL,
		"ADMIN_SERVICE_URL":      c.Upstream.AdminURL,
	}

	var missing []string
	for _, name := range names {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
