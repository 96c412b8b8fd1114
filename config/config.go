package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL   string
	JournalKey string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string
	PubNubChannel      string

	// Market configuration
	FeePercent         decimal.Decimal
	MaxAuctionDuration time.Duration
	EngineAccount      string
	AdminAccount       string
	AdminKeyHash       string
	ApprovedTokens     []string

	// Ledger configuration. An empty LedgerURL selects the in-memory ledger.
	LedgerURL     string
	LedgerHMACKey string
	LedgerTimeout time.Duration

	// Protection
	RateLimitPerMinute int

	// Logging
	LogLevel    string
	LogEncoding string

	// Monitoring
	EnableMetrics     bool
	ReconcileInterval time.Duration
}

// LoadConfig reads configuration from the environment, after loading a
// .env file when one is present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:   getEnv("REDIS_URL", "localhost:6379"),
		JournalKey: getEnv("JOURNAL_KEY", "market:events"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-market"),
		PubNubChannel:      getEnv("PUBNUB_CHANNEL", "market-events"),

		// Market
		FeePercent:         getEnvAsDecimal("FEE_PERCENT", decimal.NewFromInt(2)),
		MaxAuctionDuration: getEnvAsDuration("MAX_AUCTION_DURATION", "720h"),
		EngineAccount:      getEnv("ENGINE_ACCOUNT", "market-engine"),
		AdminAccount:       getEnv("ADMIN_ACCOUNT", ""),
		AdminKeyHash:       getEnv("ADMIN_KEY_HASH", ""),
		ApprovedTokens:     getEnvAsList("APPROVED_TOKENS"),

		// Ledger
		LedgerURL:     getEnv("LEDGER_URL", ""),
		LedgerHMACKey: getEnv("LEDGER_HMAC_KEY", ""),
		LedgerTimeout: getEnvAsDuration("LEDGER_TIMEOUT", "10s"),

		// Protection
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogEncoding: getEnv("LOG_ENCODING", "json"),

		// Monitoring
		EnableMetrics:     getEnvAsBool("ENABLE_METRICS", true),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "1m"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
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

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := getEnv(key, "")
	if value, err := decimal.NewFromString(valueStr); err == nil && !value.IsNegative() {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
