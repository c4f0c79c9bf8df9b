// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// ServerPort is the HTTP listen port for the API server.
	ServerPort string

	// SQLitePath is the path of the SQLite database file holding
	// persisted sessions.
	SQLitePath string

	// Kafka contains settings for the optional session event publisher.
	// Publishing is disabled when Broker is empty.
	Kafka KafkaConfig

	// Pricing contains settings for the historical price oracle.
	Pricing PricingConfig
}

// KafkaConfig holds Kafka connection settings for session events.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	// Empty disables event publishing.
	Broker string

	// Topic is the Kafka topic for session lifecycle events.
	Topic string
}

// PricingConfig holds historical price oracle settings.
type PricingConfig struct {
	// Strict aborts a processing run when a price provider fails outright.
	// Assets the providers simply have no data for never abort a run.
	Strict bool

	// CacheSize caps the number of (asset, day) prices kept in memory.
	CacheSize int
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8000"),
		SQLitePath: getEnv("SQLITE_PATH", "sessions.db"),
		Kafka: KafkaConfig{
			Broker: getEnv("KAFKA_BROKER", ""),
			Topic:  getEnv("KAFKA_SESSION_TOPIC", "hacienda_sessions"),
		},
		Pricing: PricingConfig{
			Strict:    getEnvBool("PRICING_STRICT", false),
			CacheSize: getEnvInt("PRICE_CACHE_SIZE", 4096),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
