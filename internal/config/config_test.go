package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetEnvFallsBackToDefaultWhenUnset(t *testing.T) {
	require.Equal(t, "fallback", GetEnv("MCPGATE_TEST_UNSET_VAR", "fallback"))

	t.Setenv("MCPGATE_TEST_VAR", "  value  ")
	require.Equal(t, "value", GetEnv("MCPGATE_TEST_VAR", "fallback"))
}

func TestGetEnvBoolAcceptsCommonTruthyForms(t *testing.T) {
	require.True(t, GetEnvBool("MCPGATE_TEST_UNSET_BOOL", true))

	for _, v := range []string{"true", "1", "yes", "Y"} {
		t.Setenv("MCPGATE_TEST_BOOL", v)
		require.True(t, GetEnvBool("MCPGATE_TEST_BOOL", false), "expected %q to parse truthy", v)
	}

	t.Setenv("MCPGATE_TEST_BOOL", "no")
	require.False(t, GetEnvBool("MCPGATE_TEST_BOOL", true))
}

func TestGetEnvIntFallsBackOnMissingOrInvalid(t *testing.T) {
	require.Equal(t, 42, GetEnvInt("MCPGATE_TEST_UNSET_INT", 42))

	t.Setenv("MCPGATE_TEST_INT", "not-a-number")
	require.Equal(t, 42, GetEnvInt("MCPGATE_TEST_INT", 42))

	t.Setenv("MCPGATE_TEST_INT", "17")
	require.Equal(t, 17, GetEnvInt("MCPGATE_TEST_INT", 42))
}

func TestParseDurationOrDefaultFallsBackOnInvalid(t *testing.T) {
	require.Equal(t, 5*time.Second, ParseDurationOrDefault("MCPGATE_TEST_UNSET_DURATION", 5*time.Second))

	t.Setenv("MCPGATE_TEST_DURATION", "not-a-duration")
	require.Equal(t, 5*time.Second, ParseDurationOrDefault("MCPGATE_TEST_DURATION", 5*time.Second))

	t.Setenv("MCPGATE_TEST_DURATION", "90s")
	require.Equal(t, 90*time.Second, ParseDurationOrDefault("MCPGATE_TEST_DURATION", 5*time.Second))
}

func TestSplitAndTrimCSVDropsEmptyEntries(t *testing.T) {
	require.Nil(t, SplitAndTrimCSV(""))
	require.Equal(t, []string{"a", "b", "c"}, SplitAndTrimCSV("a, b ,, c"))
}

func TestLoadAppliesDefaultsWhenEnvironmentIsEmpty(t *testing.T) {
	for _, key := range []string{
		"DB_PATH", "PORT", "MASTER_ADMIN_KEY", "REDIS_ADDR",
		"RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_PER_DAY", "CACHE_MEMORY_CAPACITY",
		"WEBHOOK_RETRY_COUNT", "WEBHOOK_RETRY_DELAY", "WEBHOOK_DELIVERY_RETAIN_DAYS",
		"BUDGET_DEFAULT_PERIOD", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, int64(60), cfg.RateLimitDefaultPerMinute)
	require.Equal(t, int64(10000), cfg.RateLimitDefaultPerDay)
	require.Equal(t, "month", cfg.BudgetDefaultPeriod)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MASTER_ADMIN_KEY", "super-secret")
	t.Setenv("BUDGET_DEFAULT_PERIOD", "day")

	cfg := Load()
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "super-secret", cfg.MasterAdminKey)
	require.Equal(t, "day", cfg.BudgetDefaultPeriod)
}
