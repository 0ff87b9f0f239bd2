package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DBDriver      string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	SQLitePath    string
	MigrationsDir string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Pipeline
	PipelineAPIKey string

	// Month rollover
	RolloverInterval    time.Duration
	RolloverConcurrency int
	// RegenerateLockedSnapshots decides whether an applied scheduled adjustment
	// may delete (and thereby regenerate) the snapshot of a locked month.
	RegenerateLockedSnapshots bool
	// LazyApplyOnRead applies due scheduled adjustments when a month is read.
	LazyApplyOnRead bool
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get values from environment variables with defaults
	config := &Config{
		// Server
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		// Database
		DBDriver:      getEnv("DB_DRIVER", "postgres"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "homebudget"),
		DBPassword:    getEnv("DB_PASSWORD", "homebudget"),
		DBName:        getEnv("DB_NAME", "homebudget"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		SQLitePath:    getEnv("SQLITE_PATH", "homebudget.db"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Pipeline
		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		// Month rollover
		RolloverConcurrency:       getEnvInt("ROLLOVER_CONCURRENCY", 4),
		RegenerateLockedSnapshots: getEnvBool("REGENERATE_LOCKED_SNAPSHOTS", false),
		LazyApplyOnRead:           getEnvBool("LAZY_APPLY_ON_READ", true),
	}

	config.JWTExpirationDur = getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.RolloverInterval = getEnvDuration("ROLLOVER_INTERVAL", time.Hour)

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
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %t\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}
