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

	// PubNub configuration (user-facing notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Admission configuration
	CheckoutLimit          int
	QueueExpiry            time.Duration
	CheckoutExpiry         time.Duration
	QueueCooldown          time.Duration
	ReaperInterval         time.Duration
	PositionUpdateInterval time.Duration
	PositionCacheTTL       time.Duration

	// Settlement gateway
	SettlementProvider    string // "auto" or "gateway"
	SettlementChannel     string
	SettlementSubKey      string
	SettlementPubKey      string
	SettlementHMACKey     string
	SettlementTimeout     time.Duration
	// bcrypt hash of the secret the provider presents on HTTP callbacks.
	SettlementWebhookHash string

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

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Admission
		CheckoutLimit:          getEnvAsInt("CHECKOUT_LIMIT", 10),
		QueueExpiry:            getEnvAsDuration("QUEUE_EXPIRY", "30m"),
		CheckoutExpiry:         getEnvAsDuration("CHECKOUT_EXPIRY", "10m"),
		QueueCooldown:          getEnvAsDuration("QUEUE_COOLDOWN", "5m"),
		ReaperInterval:         getEnvAsDuration("REAPER_INTERVAL", "15s"),
		PositionUpdateInterval: getEnvAsDuration("QUEUE_POSITION_UPDATE", "2s"),
		PositionCacheTTL:       getEnvAsDuration("QUEUE_POSITION_TTL", "15s"),

		// Settlement
		SettlementProvider:    getEnv("SETTLEMENT_PROVIDER", "auto"),
		SettlementChannel:     getEnv("SETTLEMENT_CHANNEL", "settlement-notifications"),
		SettlementSubKey:      getEnv("SETTLEMENT_SUB_KEY", ""),
		SettlementPubKey:      getEnv("SETTLEMENT_PUB_KEY", ""),
		SettlementHMACKey:     getEnv("SETTLEMENT_HMAC_KEY", ""),
		SettlementTimeout:     getEnvAsDuration("SETTLEMENT_TIMEOUT", "15s"),
		SettlementWebhookHash: getEnv("SETTLEMENT_WEBHOOK_HASH", ""),

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
