// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Exchange  ExchangeConfig
	Vault     VaultConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ExchangeConfig holds exchange client configuration.
type ExchangeConfig struct {
	BaseURL           string
	RecvWindow        time.Duration
	MaxPageSize       int
	RequestsPerSecond float64
}

// VaultConfig holds credential-encryption configuration.
type VaultConfig struct {
	// Secret is the key material for credential encryption at rest:
	// 32-byte hex, 32-byte base64, or an arbitrary passphrase.
	Secret string
}

// SyncConfig holds synchronizer configuration.
type SyncConfig struct {
	// MaxPageLoops caps the page-fetch loop per synchronizer run. Circuit
	// breaker against API contract violations, not a tuning knob.
	MaxPageLoops int
	// Interval enables the background scheduler when > 0. Sync stays
	// user-triggered when disabled.
	Interval time.Duration
	// LockTTL bounds how long a crashed sync holds its per-integration lock.
	LockTTL time.Duration
}

// RateLimitConfig holds per-user API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from a .env file and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Exchange: ExchangeConfig{
			BaseURL:           getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			RecvWindow:        getEnvAsDuration("BINANCE_RECV_WINDOW", 60*time.Second),
			MaxPageSize:       getEnvAsInt("BINANCE_MAX_PAGE_SIZE", 1000),
			RequestsPerSecond: getEnvAsFloat("BINANCE_REQUESTS_PER_SECOND", 10),
		},
		Vault: VaultConfig{
			Secret: getEnv("VAULT_SECRET", ""),
		},
		Sync: SyncConfig{
			MaxPageLoops: getEnvAsInt("SYNC_MAX_PAGE_LOOPS", 500),
			Interval:     getEnvAsDuration("SYNC_INTERVAL", 0),
			LockTTL:      getEnvAsDuration("SYNC_LOCK_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("API_RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("API_RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.Vault.Secret == "" {
		return fmt.Errorf("VAULT_SECRET is required")
	}
	if c.Exchange.MaxPageSize < 1 || c.Exchange.MaxPageSize > 1000 {
		return fmt.Errorf("BINANCE_MAX_PAGE_SIZE must be between 1 and 1000, got %d", c.Exchange.MaxPageSize)
	}
	if c.Sync.MaxPageLoops < 1 {
		return fmt.Errorf("SYNC_MAX_PAGE_LOOPS must be positive, got %d", c.Sync.MaxPageLoops)
	}
	if c.Database.Postgres.MaxConnections < 1 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", c.Database.Postgres.MaxConnections)
	}
	return nil
}

// PostgresURL builds the database URL used by the migration runner.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.Database.Postgres.User,
		c.Database.Postgres.Password,
		c.Database.Postgres.Host,
		c.Database.Postgres.Port,
		c.Database.Postgres.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
