// Package config provides configuration management for the pulse engine.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration before the application starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - IS_BETA: Run the engine in beta mode (default: false). Beta and
//     production engines share infrastructure but never advance each
//     other's triggers or playlists.
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./pulse_engine.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Scheduler:
//   - SCHEDULER_INTERVAL: Poll interval for due schedule triggers
//     (default: 60s)
//
// Workers and Notifications:
//   - AWS_REGION: Region for worker invocation and SNS publishing
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN:
//     Static credentials; omit to use the default credential chain
//   - ADHOC_WORKER_HANDLE: Invocation handle of the ad-hoc trigger worker
//   - REFRESH_TOPIC_ARN: SNS topic for fire-and-forget refresh signals;
//     empty disables refresh notifications
//
// Redis (optional, multi-instance deployments):
//   - REDIS_ADDRESS: Redis server address; empty selects in-process locks
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Watchdog:
//   - WATCHDOG_ENABLED: Fail playlists stuck on one step (default: false)
//   - WATCHDOG_TIMEOUT: How long a dispatched step may await completion
//     before the playlist is failed (default: 30m)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pulse-engine/internal/common/errors"
)

// Config holds all configuration values for the pulse engine. All string
// fields correspond to environment variables that can be set to override
// the default values.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	IsBeta   bool

	// Database configuration
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Scheduler configuration
	SchedulerInterval time.Duration

	// Worker invocation and notifications
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AdhocWorkerHandle  string
	RefreshTopicARN    string

	// Redis configuration for distributed per-playlist locks
	RedisAddress  string
	RedisPassword string
	RedisDB       string

	// Watchdog for stuck dispatches
	WatchdogEnabled bool
	WatchdogTimeout time.Duration
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding
// default value is used.
//
// This function does not validate the configuration - call Validate() on
// the returned Config before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		IsBeta:   getBoolEnv("IS_BETA", false),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./pulse_engine.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", ""),
		PostgresUser:     getEnv("POSTGRES_USER", ""),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		SchedulerInterval: getDurationEnv("SCHEDULER_INTERVAL", 60*time.Second),

		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSSessionToken:    getEnv("AWS_SESSION_TOKEN", ""),
		AdhocWorkerHandle:  getEnv("ADHOC_WORKER_HANDLE", ""),
		RefreshTopicARN:    getEnv("REFRESH_TOPIC_ARN", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),

		WatchdogEnabled: getBoolEnv("WATCHDOG_ENABLED", false),
		WatchdogTimeout: getDurationEnv("WATCHDOG_TIMEOUT", 30*time.Minute),
	}
}

// Validate checks that the configuration is complete enough to start the
// application safely. It returns a config error describing the first problem
// found.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.ConfigError("PORT cannot be empty")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError(fmt.Sprintf("PORT must be a valid port number, got: %s", c.Port))
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return errors.ConfigError("DATABASE_PATH is required for sqlite")
		}
	case "postgres":
		if c.PostgresHost == "" {
			return errors.ConfigError("POSTGRES_HOST is required for postgres")
		}
		if c.PostgresDB == "" {
			return errors.ConfigError("POSTGRES_DB is required for postgres")
		}
		if c.PostgresUser == "" {
			return errors.ConfigError("POSTGRES_USER is required for postgres")
		}
	default:
		return errors.ConfigError(fmt.Sprintf("DATABASE_TYPE must be sqlite or postgres, got: %s", c.DatabaseType))
	}

	if c.SchedulerInterval < time.Second {
		return errors.ConfigError(fmt.Sprintf("SCHEDULER_INTERVAL must be at least 1s, got: %s", c.SchedulerInterval))
	}

	if c.RedisDB != "" {
		db, err := strconv.Atoi(c.RedisDB)
		if err != nil || db < 0 || db > 15 {
			return errors.ConfigError(fmt.Sprintf("REDIS_DB must be a number between 0 and 15, got: %s", c.RedisDB))
		}
	}

	if c.WatchdogEnabled && c.WatchdogTimeout < time.Minute {
		return errors.ConfigError(fmt.Sprintf("WATCHDOG_TIMEOUT must be at least 1m, got: %s", c.WatchdogTimeout))
	}

	return nil
}

// PostgresConnectionString builds the DSN for the postgres adapter.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB,
		c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
