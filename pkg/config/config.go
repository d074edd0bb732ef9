// Package config loads environment-backed configuration for the ledger core.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Worker   WorkerConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// LedgerConfig names the singleton house accounts. They are resolved once at
// startup and passed by reference into the orchestrator; nothing memoizes
// them per process.
type LedgerConfig struct {
	Currency               string
	FeeAccountID           uuid.UUID
	InsuranceFundAccountID uuid.UUID
	// ProviderAccounts maps a provider identifier to the owner of its
	// system wallet, parsed from "provider=uuid,provider=uuid".
	ProviderAccounts map[string]uuid.UUID
}

type WorkerConfig struct {
	Interval          time.Duration
	StaleInitiatedAge time.Duration
	BatchSize         int
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			Currency:               getEnv("LEDGER_CURRENCY", "IRR"),
			FeeAccountID:           getUUIDEnv("LEDGER_FEE_ACCOUNT_ID"),
			InsuranceFundAccountID: getUUIDEnv("LEDGER_INSURANCE_FUND_ACCOUNT_ID"),
			ProviderAccounts:       getAccountMapEnv("LEDGER_PROVIDER_ACCOUNTS"),
		},
		Worker: WorkerConfig{
			Interval:          getDurationEnv("SETTLEMENT_WORKER_INTERVAL", time.Minute),
			StaleInitiatedAge: getDurationEnv("SETTLEMENT_STALE_INITIATED_AGE", 5*time.Minute),
			BatchSize:         getIntEnv("SETTLEMENT_WORKER_BATCH_SIZE", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getUUIDEnv(key string) uuid.UUID {
	if value := os.Getenv(key); value != "" {
		if id, err := uuid.Parse(value); err == nil {
			return id
		}
	}
	return uuid.Nil
}

func getAccountMapEnv(key string) map[string]uuid.UUID {
	accounts := make(map[string]uuid.UUID)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		accounts[strings.TrimSpace(parts[0])] = id
	}
	return accounts
}
