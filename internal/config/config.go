package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	// MaxCharge is the per-transaction ceiling enforced at the coordinator.
	MaxCharge decimal.Decimal

	// RemoteCallTimeout bounds every balance-store and journal call made on
	// behalf of an interactive charge.
	RemoteCallTimeout time.Duration

	// PendingTimeout is how long a journal entry may stay pending before the
	// recovery sweep voids it. SweepInterval is how often the sweep runs.
	PendingTimeout time.Duration
	SweepInterval  time.Duration

	// SessionRetention is how long terminal charge sessions stay queryable.
	SessionRetention time.Duration

	// RedisAddr enables the Redis accrual cache when non-empty.
	RedisAddr     string
	RedisPassword string

	// MerchantWebhookURL receives a fire-and-forget notification per commit.
	MerchantWebhookURL string
}

func Load() *Config {
	return &Config{
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "password"),
		DBName:             getEnv("DB_NAME", "giftcard_ledger"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		MaxCharge:          getEnvDecimal("MAX_CHARGE", "500"),
		RemoteCallTimeout:  getEnvDuration("REMOTE_CALL_TIMEOUT", 5*time.Second),
		PendingTimeout:     getEnvDuration("PENDING_TIMEOUT", 15*time.Minute),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
		SessionRetention:   getEnvDuration("SESSION_RETENTION", time.Hour),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		MerchantWebhookURL: getEnv("MERCHANT_WEBHOOK_URL", ""),
	}
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
