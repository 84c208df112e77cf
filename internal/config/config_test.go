package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":     "postgres://localhost/metrature",
		"REDIS_URL":        "redis://localhost:6379/0",
		"ADMIN_JWT_SECRET": "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	env := baseEnv()
	for _, k := range []string{"ITEM_CONFIG_CACHE_TTL", "LOCK_TTL", "DEFAULT_CUSTOMER_GROUP", "RATE_LIMIT_PRICING", "PORT", "RUN_MIGRATIONS", "OBS_ENABLE_PROMETHEUS", "AUDIT_ENABLED", "MAX_BODY_BYTES", "SECURITY_HSTS_ENABLED"} {
		env[k] = ""
	}
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.ItemConfigCacheTTL)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.Equal(t, "All Customer Groups", cfg.DefaultCustomerGroup)
	require.Equal(t, "120-M", cfg.RateLimitPricing)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.False(t, cfg.RunMigrations)
	require.True(t, cfg.Obs.EnablePrometheus)
	require.True(t, cfg.AuditEnabled)
	require.True(t, cfg.Security.HeadersEnabled)
	require.False(t, cfg.Security.HSTSEnabled)
	require.Equal(t, int64(1<<20), cfg.Security.MaxBodyBytes)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["ITEM_CONFIG_CACHE_TTL"] = "90s"
	env["LOCK_TTL"] = "not-a-duration"
	env["CORS_ALLOWED_ORIGINS"] = " https://erp.example.com, ,https://admin.example.com "
	env["RUN_MIGRATIONS"] = "yes"
	env["OBS_TRACING_SAMPLING_RATIO"] = "0.25"
	env["PORT"] = ":9090"
	env["MAX_BODY_BYTES"] = "-5"
	env["AUDIT_ENABLED"] = "off"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.ItemConfigCacheTTL)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.Equal(t, []string{"https://erp.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.RunMigrations)
	require.Equal(t, 0.25, cfg.Obs.SamplingRatio)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, int64(1<<20), cfg.Security.MaxBodyBytes)
	require.False(t, cfg.AuditEnabled)
}

func TestLoadRequiresSecrets(t *testing.T) {
	_, err := LoadForTests(map[string]string{"DATABASE_URL": "", "REDIS_URL": "", "ADMIN_JWT_SECRET": ""})
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL is required")
	require.Contains(t, err.Error(), "REDIS_URL is required")
	require.Contains(t, err.Error(), "ADMIN_JWT_SECRET is required")
}
