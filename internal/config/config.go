package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Strategy store (Postgres)
	Database DatabaseConfig

	// Redis (streams, cache, throttle)
	Redis RedisConfig

	// External collaborators
	Provider ProviderConfig
	Broker   BrokerConfig

	// Services
	Evaluator EvaluatorConfig
	Executor  ExecutorConfig
	Fetcher   FetcherConfig
}

// DatabaseConfig holds Postgres configuration for the strategy store
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// ProviderConfig holds indicator data provider configuration
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// BrokerConfig holds brokerage API configuration
type BrokerConfig struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	RequestTimeout time.Duration
}

// EvaluatorConfig holds strategy evaluation consumer configuration
type EvaluatorConfig struct {
	HealthCheckPort    int
	StreamName         string
	ConsumerGroup      string
	ActionStreamName   string
	ConcurrencyLimit   int           // Concurrent strategy evaluations per event
	EvalTimeBudget     time.Duration // Soft latency budget; exceeded runs log a warning
	ErrorBackoff       time.Duration // Pause after a top-level processing failure
	TreeMaxDepth       int           // Strategy tree fetch depth
	DefaultCooldown    time.Duration // Throttle window when the interval is unknown
}

// ExecutorConfig holds action execution consumer configuration
type ExecutorConfig struct {
	HealthCheckPort int
	StreamName      string
	ConsumerGroup   string
}

// FetcherConfig holds indicator fetch/discovery service configuration
type FetcherConfig struct {
	HealthCheckPort   int
	StreamName        string
	DiscoveryInterval time.Duration
	OptimizeSpec      string // Cron spec for the cache optimizer sweep
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "strategy_engine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Provider: ProviderConfig{
			APIKey:         getEnv("PROVIDER_API_KEY", ""),
			BaseURL:        getEnv("PROVIDER_BASE_URL", "https://www.alphavantage.co"),
			RequestTimeout: getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 15*time.Second),
		},
		Broker: BrokerConfig{
			APIKey:         getEnv("BROKER_API_KEY", ""),
			APISecret:      getEnv("BROKER_API_SECRET", ""),
			BaseURL:        getEnv("BROKER_BASE_URL", "https://broker-api.sandbox.alpaca.markets"),
			RequestTimeout: getEnvAsDuration("BROKER_REQUEST_TIMEOUT", 10*time.Second),
		},
		Evaluator: EvaluatorConfig{
			HealthCheckPort:  getEnvAsInt("EVALUATOR_HEALTH_PORT", 8081),
			StreamName:       getEnv("INDICATOR_STREAM_NAME", "indicator.updates"),
			ConsumerGroup:    getEnv("EVALUATOR_CONSUMER_GROUP", "strategy-evaluator"),
			ActionStreamName: getEnv("ACTION_STREAM_NAME", "actions.required"),
			ConcurrencyLimit: getEnvAsInt("EVALUATOR_CONCURRENCY", 5),
			EvalTimeBudget:   getEnvAsDuration("EVALUATOR_TIME_BUDGET", 30*time.Millisecond),
			ErrorBackoff:     getEnvAsDuration("EVALUATOR_ERROR_BACKOFF", 5*time.Second),
			TreeMaxDepth:     getEnvAsInt("STORE_TREE_MAX_DEPTH", 4),
			DefaultCooldown:  getEnvAsDuration("EVALUATOR_DEFAULT_COOLDOWN", 5*time.Minute),
		},
		Executor: ExecutorConfig{
			HealthCheckPort: getEnvAsInt("EXECUTOR_HEALTH_PORT", 8083),
			StreamName:      getEnv("ACTION_STREAM_NAME", "actions.required"),
			ConsumerGroup:   getEnv("EXECUTOR_CONSUMER_GROUP", "action-executor"),
		},
		Fetcher: FetcherConfig{
			HealthCheckPort:   getEnvAsInt("FETCHER_HEALTH_PORT", 8085),
			StreamName:        getEnv("INDICATOR_STREAM_NAME", "indicator.updates"),
			DiscoveryInterval: getEnvAsDuration("FETCHER_DISCOVERY_INTERVAL", 1*time.Minute),
			OptimizeSpec:      getEnv("CACHE_OPTIMIZE_CRON", "0 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Evaluator.ConcurrencyLimit < 1 {
		return fmt.Errorf("EVALUATOR_CONCURRENCY must be at least 1")
	}
	if c.Evaluator.TreeMaxDepth < 1 {
		return fmt.Errorf("STORE_TREE_MAX_DEPTH must be at least 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
