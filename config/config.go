package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Provider (Stripe-style) configuration
	ProviderSecretKey     string
	ProviderWebhookSecret string
	Currency              string
	CheckoutSuccessURL    string
	CheckoutCancelURL     string

	// Fee configuration. Rates are decimal strings ("0.036" = 3.6%),
	// fixed amounts and bounds are minor units; a 0 bound means none.
	ProviderFeeRate  string
	ProviderFeeFixed int64
	PlatformFeeRate  string
	PlatformFeeFixed int64
	PlatformFeeMin   int64
	PlatformFeeMax   int64

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Timeout configuration
	ProviderTimeout time.Duration
	TransferTimeout time.Duration

	// Webhook ingestion
	WebhookMaxRetries   int
	WebhookNotFoundWait time.Duration
	WebhookDedupeTTL    time.Duration

	// Account status cache
	AccountCacheTTL time.Duration

	// Reconciliation
	ReconcileInterval time.Duration

	// Rate limiting
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Provider
		ProviderSecretKey:     getEnv("PROVIDER_SECRET_KEY", ""),
		ProviderWebhookSecret: getEnv("PROVIDER_WEBHOOK_SECRET", ""),
		Currency:              getEnv("CURRENCY", "jpy"),
		CheckoutSuccessURL:    getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/payment/success"),
		CheckoutCancelURL:     getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/payment/cancel"),

		// Fees
		ProviderFeeRate:  getEnv("PROVIDER_FEE_RATE", "0.036"),
		ProviderFeeFixed: getEnvAsInt64("PROVIDER_FEE_FIXED", 0),
		PlatformFeeRate:  getEnv("PLATFORM_FEE_RATE", "0"),
		PlatformFeeFixed: getEnvAsInt64("PLATFORM_FEE_FIXED", 0),
		PlatformFeeMin:   getEnvAsInt64("PLATFORM_FEE_MIN", 0),
		PlatformFeeMax:   getEnvAsInt64("PLATFORM_FEE_MAX", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Timeouts
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", "10s"),
		TransferTimeout: getEnvAsDuration("TRANSFER_TIMEOUT", "30s"),

		// Webhook ingestion
		WebhookMaxRetries:   getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookNotFoundWait: getEnvAsDuration("WEBHOOK_NOT_FOUND_WAIT", "200ms"),
		WebhookDedupeTTL:    getEnvAsDuration("WEBHOOK_DEDUPE_TTL", "24h"),

		// Account cache
		AccountCacheTTL: getEnvAsDuration("ACCOUNT_CACHE_TTL", "60s"),

		// Reconciliation
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "10m"),

		// Rate limiting
		CheckoutRateLimit:  getEnvAsInt("CHECKOUT_RATE_LIMIT", 10),
		CheckoutRateWindow: getEnvAsDuration("CHECKOUT_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
