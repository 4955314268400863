package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"community-campaigns/internal/blockchain"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Ledger   LedgerConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Jobs     JobsConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings. DSN, when set, takes
// precedence over the individual postgres fields.
type DatabaseConfig struct {
	Driver   string // postgres, sqlite
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	Mode           string // debug, release, test
	AllowedOrigins string
	JoinRateLimit  float64
	JoinRateBurst  int
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret       string
	TokenExpiration time.Duration
}

// LedgerConfig holds the settings of the on-chain campaign registry. Missing
// values do not fail Load; the registry reports them when it is invoked.
type LedgerConfig struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	ChainID         int64
	ConfirmTimeout  time.Duration
	MaxAttempts     int
}

// RedisConfig for the optional asynq task queue
type RedisConfig struct {
	Enabled bool
	URL     string
}

// WorkerConfig sizes the in-process registration queue
type WorkerConfig struct {
	Concurrency int
	QueueSize   int
	TaskTimeout time.Duration
}

// JobsConfig holds background job settings
type JobsConfig struct {
	BacklogMonitorInterval time.Duration
}

type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	redisURL := getEnv("REDIS_URL", "")

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			DSN:      getEnv("DB_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "community_campaigns"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Mode:           getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			JoinRateLimit:  getEnvFloat("JOIN_RATE_LIMIT", 5),
			JoinRateBurst:  getEnvInt("JOIN_RATE_BURST", 10),
		},
		App: AppConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			TokenExpiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Ledger: LedgerConfig{
			RPCURL:          getEnv("LEDGER_RPC_URL", ""),
			PrivateKey:      getEnv("LEDGER_PRIVATE_KEY", ""),
			ContractAddress: getEnv("LEDGER_CONTRACT_ADDRESS", ""),
			ChainID:         int64(getEnvInt("LEDGER_CHAIN_ID", 0)),
			ConfirmTimeout:  getEnvDuration("LEDGER_CONFIRM_TIMEOUT", 2*time.Minute),
			MaxAttempts:     getEnvInt("LEDGER_MAX_ATTEMPTS", 3),
		},
		Redis: RedisConfig{
			Enabled: redisURL != "",
			URL:     redisURL,
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 2),
			QueueSize:   getEnvInt("WORKER_QUEUE_SIZE", 100),
			TaskTimeout: getEnvDuration("WORKER_TASK_TIMEOUT", 5*time.Minute),
		},
		Jobs: JobsConfig{
			BacklogMonitorInterval: getEnvDuration("BACKLOG_MONITOR_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Database.Driver)
	}

	if config.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	return config, nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "sqlite" {
		return c.Database.DBName + ".db"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// LedgerRegistryConfig converts the ledger settings for the registry client
func (c *Config) LedgerRegistryConfig() blockchain.Config {
	return blockchain.Config{
		RPCURL:          c.Ledger.RPCURL,
		PrivateKey:      c.Ledger.PrivateKey,
		ContractAddress: c.Ledger.ContractAddress,
		ChainID:         c.Ledger.ChainID,
		ConfirmTimeout:  c.Ledger.ConfirmTimeout,
		MaxAttempts:     c.Ledger.MaxAttempts,
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
