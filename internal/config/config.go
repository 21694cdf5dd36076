package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	// Server
	Env      string
	Port     string
	LogLevel string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Migrations
	MigrationsPath string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Ops endpoints. Empty OpsAPIKey disables them.
	OpsAPIKey string

	// Request throttling
	ThrottleEnabled bool

	// Redis (cache and event streams). Empty RedisAddr selects the in-process fallbacks.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Accrual
	CacheTTL            time.Duration
	InterestMonthlyRate decimal.Decimal

	// Outbox relay
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	InvestmentsStream  string
	WithdrawalsStream  string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "convertax"),
		DBPassword: getEnv("DB_PASSWORD", "convertax"),
		DBName:     getEnv("DB_NAME", "convertax"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		OpsAPIKey: getEnv("OPS_API_KEY", ""),

		ThrottleEnabled: getEnvBool("THROTTLE_ENABLED", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CacheTTL: getEnvDuration("CACHE_TTL", time.Hour),

		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
		InvestmentsStream:  getEnv("INVESTMENTS_STREAM", "investments_queue"),
		WithdrawalsStream:  getEnv("WITHDRAWALS_STREAM", "withdrawals_queue"),
	}

	config.JWTExpirationDur = getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour)

	rateStr := getEnv("INTEREST_MONTHLY_RATE", "0.0052")
	rate, err := decimal.NewFromString(rateStr)
	if err != nil || !rate.IsPositive() {
		log.Printf("Warning: invalid INTEREST_MONTHLY_RATE value '%s', falling back to 0.0052\n", rateStr)
		rate = decimal.RequireFromString("0.0052")
	}
	config.InterestMonthlyRate = rate

	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = 50
	}
	if config.OutboxMaxAttempts <= 0 {
		config.OutboxMaxAttempts = 10
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, s, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %t\n", key, s, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, s, defaultValue)
		return defaultValue
	}
	return d
}
