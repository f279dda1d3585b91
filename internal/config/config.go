package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/repository"
)

const defaultBaseURL = "http://localhost:3000"

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	Database repository.Credentials

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI      string
	MongoDatabase string

	KafkaBrokers []string
	KafkaTopic   string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string

	BaseURL           string
	Currency          string
	ShippingCountries []string

	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
	CatalogTimeout  time.Duration
	LockTTL         time.Duration

	LogLevel     string
	Environment  string
	OTelEnabled  bool
	OTelEndpoint string
	OTelSample   float64
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads the process configuration from the environment. Every malformed
// value is reported, not just the first.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(p.int("MAX_REQUEST_BODY_BYTES", 1<<20)),

		Database: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              p.int("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),

		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "storefront"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:        os.Getenv("STRIPE_API_URL"),

		BaseURL:           ResolveBaseURL(os.Getenv("PUBLIC_BASE_URL"), os.Getenv("DEPLOYMENT_HOST")),
		Currency:          strings.ToLower(getEnv("CHECKOUT_CURRENCY", "usd")),
		ShippingCountries: splitList(strings.ToUpper(getEnv("SHIPPING_COUNTRIES", "US,CA,GB"))),

		StoreTimeout:    p.duration("STORE_TIMEOUT", 5*time.Second),
		ProviderTimeout: p.duration("PROVIDER_TIMEOUT", 10*time.Second),
		CatalogTimeout:  p.duration("CATALOG_TIMEOUT", 3*time.Second),
		LockTTL:         p.duration("LOCK_TTL", time.Minute),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Environment:  getEnv("ENVIRONMENT", "local"),
		OTelEnabled:  p.bool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSample:   p.float("OTEL_SAMPLE_RATIO", 1),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks what the HTTP server needs before it can take traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if err := domain.CheckCurrency(c.Currency); err != nil {
		errs = append(errs, fmt.Errorf("invalid CHECKOUT_CURRENCY: %w", err))
	}
	return errors.Join(errs...)
}

// ResolveBaseURL picks the public URL used for checkout redirects: an explicit
// URL first, then https on the deployment host, then local development.
func ResolveBaseURL(explicit, deploymentHost string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if deploymentHost = strings.TrimSpace(deploymentHost); deploymentHost != "" {
		return "https://" + strings.TrimRight(deploymentHost, "/")
	}
	return defaultBaseURL
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

type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}
