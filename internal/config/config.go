package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// System-of-record API the sync queue reconciles against.
	SorBaseURL string
	SorToken   string

	AdminJWTSecret   string
	CronSharedSecret string

	// Path to the scheduling-rules JSON document (tiers, penalties, score
	// weights). Empty means built-in defaults.
	RulesPath string

	BlackoutDays int

	SyncWorkerEnabled bool
	SyncInterval      time.Duration
	SweepBatchSize    int
	SweepLeaseTTL     time.Duration

	HousekeepingSyncRetention  time.Duration
	HousekeepingAuditRetention time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SorBaseURL: getEnv("SOR_BASE_URL", ""),
		SorToken:   getEnv("SOR_API_TOKEN", ""),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		CronSharedSecret: getEnv("CRON_SHARED_SECRET", ""),

		RulesPath: getEnv("SCHEDULING_RULES_PATH", ""),

		BlackoutDays: getEnvAsInt("BLACKOUT_DAYS", 3),

		SyncWorkerEnabled: getEnvAsBool("SYNC_WORKER_ENABLED", true),
		SyncInterval:      getEnvAsDuration("SYNC_INTERVAL", time.Minute),
		SweepBatchSize:    getEnvAsInt("SWEEP_BATCH_SIZE", 25),
		SweepLeaseTTL:     getEnvAsDuration("SWEEP_LEASE_TTL", 2*time.Minute),

		HousekeepingSyncRetention:  getEnvAsDuration("HOUSEKEEPING_SYNC_RETENTION", 30*24*time.Hour),
		HousekeepingAuditRetention: getEnvAsDuration("HOUSEKEEPING_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
