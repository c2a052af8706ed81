// Package config loads gateway configuration from the environment, following
// the teacher's env-var helper style (infrastructure/config) minus its
// Marble/TEE-secret indirection, which has no analogue in this domain.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the trimmed environment variable or a default.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool parses a boolean environment variable.
func GetEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes" || v == "y"
}

// GetEnvInt parses an integer environment variable.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseDurationOrDefault parses a duration environment variable.
func ParseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// SplitAndTrimCSV splits a CSV env value, trimming and dropping empties.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Config is the fully resolved gateway configuration.
type Config struct {
	DBPath            string
	Port              int
	MasterAdminKey    string
	RedisAddr         string

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	RateLimitDefaultPerMinute int64
	RateLimitDefaultPerDay    int64

	CacheMemoryCapacity int

	WebhookDefaultRetryCount   int
	WebhookDefaultRetryDelay   time.Duration
	WebhookDeliveryRetainDays  int

	BudgetDefaultPeriod string

	LogLevel  string
	LogFormat string
}

// Load builds a Config from the process environment.
func Load() Config {
	return Config{
		DBPath:         GetEnv("DB_PATH", "postgres://localhost:5432/mcpgate?sslmode=disable"),
		Port:           GetEnvInt("PORT", 8080),
		MasterAdminKey: GetEnv("MASTER_ADMIN_KEY", ""),
		RedisAddr:      GetEnv("REDIS_ADDR", ""),

		HealthCheckInterval: ParseDurationOrDefault("HEALTH_CHECK_INTERVAL", 30*time.Second),
		HealthCheckTimeout:  ParseDurationOrDefault("HEALTH_CHECK_TIMEOUT", 5*time.Second),

		RateLimitDefaultPerMinute: int64(GetEnvInt("RATE_LIMIT_PER_MINUTE", 60)),
		RateLimitDefaultPerDay:    int64(GetEnvInt("RATE_LIMIT_PER_DAY", 10000)),

		CacheMemoryCapacity: GetEnvInt("CACHE_MEMORY_CAPACITY", 1000),

		WebhookDefaultRetryCount:  GetEnvInt("WEBHOOK_RETRY_COUNT", 3),
		WebhookDefaultRetryDelay:  ParseDurationOrDefault("WEBHOOK_RETRY_DELAY", 2*time.Second),
		WebhookDeliveryRetainDays: GetEnvInt("WEBHOOK_DELIVERY_RETAIN_DAYS", 30),

		BudgetDefaultPeriod: GetEnv("BUDGET_DEFAULT_PERIOD", "month"),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
	}
}
