package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	// Unset key returns fallback
	os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "default" {
		t.Errorf("envOr unset key = %q, want %q", got, "default")
	}

	// Set key returns value
	t.Setenv("TEST_ENVOR_KEY", "custom")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "custom" {
		t.Errorf("envOr set key = %q, want %q", got, "custom")
	}

	// Empty string returns fallback
	t.Setenv("TEST_ENVOR_KEY", "")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOr empty key = %q, want %q", got, "fallback")
	}
}

func TestTypedEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"int", "25", func(t *testing.T) {
			if got := envInt("TEST_TYPED", 50); got != 25 {
				t.Errorf("envInt = %d, want 25", got)
			}
		}},
		{"int invalid", "abc", func(t *testing.T) {
			if got := envInt("TEST_TYPED", 50); got != 50 {
				t.Errorf("envInt = %d, want 50", got)
			}
		}},
		{"int negative", "-3", func(t *testing.T) {
			if got := envInt("TEST_TYPED", 8); got != 8 {
				t.Errorf("envInt = %d, want 8", got)
			}
		}},
		{"float", "0.25", func(t *testing.T) {
			if got := envFloat("TEST_TYPED", 0.1); got != 0.25 {
				t.Errorf("envFloat = %v, want 0.25", got)
			}
		}},
		{"float invalid", "ten", func(t *testing.T) {
			if got := envFloat("TEST_TYPED", 0.1); got != 0.1 {
				t.Errorf("envFloat = %v, want 0.1", got)
			}
		}},
		{"duration", "90s", func(t *testing.T) {
			if got := envDuration("TEST_TYPED", time.Minute); got != 90*time.Second {
				t.Errorf("envDuration = %v, want 90s", got)
			}
		}},
		{"duration invalid", "5", func(t *testing.T) {
			if got := envDuration("TEST_TYPED", time.Minute); got != time.Minute {
				t.Errorf("envDuration = %v, want 1m", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_TYPED", tt.value)
			tt.check(t)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "FRONTEND_ORIGIN", "DATABASE_URL", "REDIS_URL", "REDIS_PASSWORD",
		"BLOCKSCOUT_GRAPHQL_URL", "BLOCK_INTERVAL", "FALLBACK_CHAIN_HEAD", "REPORT_TIMEZONE",
		"MAX_PAGES", "PAGE_SIZE", "FETCH_CONCURRENCY", "LIQUIDITY_POLL_INTERVAL",
		"LIQUIDITY_DROP_THRESHOLD", "LARK_APP_ID", "LARK_APP_SECRET", "PROJECTS_PATH",
		"INFISICAL_CLIENT_ID", "INFISICAL_CLIENT_SECRET",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.FrontendOrigin != "*" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "*")
	}
	if cfg.BlockscoutGraphQLURL != "https://hashkey.blockscout.com/api/v1/graphql" {
		t.Errorf("BlockscoutGraphQLURL = %q", cfg.BlockscoutGraphQLURL)
	}
	if cfg.BlockInterval != 2*time.Second {
		t.Errorf("BlockInterval = %v, want 2s", cfg.BlockInterval)
	}
	if cfg.FallbackChainHead != 1_000_000 {
		t.Errorf("FallbackChainHead = %d, want 1000000", cfg.FallbackChainHead)
	}
	if cfg.ReportTimezone != "Asia/Shanghai" {
		t.Errorf("ReportTimezone = %q", cfg.ReportTimezone)
	}
	if cfg.MaxPages != 50 || cfg.PageSize != 100 || cfg.FetchConcurrency != 8 {
		t.Errorf("MaxPages/PageSize/FetchConcurrency = %d/%d/%d", cfg.MaxPages, cfg.PageSize, cfg.FetchConcurrency)
	}
	if cfg.LiquidityPollInterval != 5*time.Minute || cfg.LiquidityDropThreshold != 0.10 {
		t.Errorf("liquidity settings = %v/%v", cfg.LiquidityPollInterval, cfg.LiquidityDropThreshold)
	}
	if cfg.ProjectsPath != "config/projects.json" {
		t.Errorf("ProjectsPath = %q", cfg.ProjectsPath)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Errorf("DatabaseURL/RedisURL = %q/%q, want empty", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.LarkAppID != "" || cfg.LarkAppSecret != "" {
		t.Error("Lark credentials should default to empty")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INFISICAL_CLIENT_ID", "")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("LARK_APP_ID", "cli_123")
	t.Setenv("LARK_APP_SECRET", "shh")
	t.Setenv("FRONTEND_ORIGIN", "http://localhost:3000")
	t.Setenv("REPORT_TIMEZONE", "UTC")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("LIQUIDITY_POLL_INTERVAL", "1m")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://test")
	}
	if cfg.LarkAppID != "cli_123" || cfg.LarkAppSecret != "shh" {
		t.Errorf("Lark credentials = %q/%q", cfg.LarkAppID, cfg.LarkAppSecret)
	}
	if cfg.FrontendOrigin != "http://localhost:3000" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "http://localhost:3000")
	}
	if cfg.ReportTimezone != "UTC" || cfg.PageSize != 25 || cfg.LiquidityPollInterval != time.Minute {
		t.Errorf("ReportTimezone/PageSize/LiquidityPollInterval = %q/%d/%v", cfg.ReportTimezone, cfg.PageSize, cfg.LiquidityPollInterval)
	}
}

func TestSecretTargets(t *testing.T) {
	cfg := Config{RedisPassword: "set"}
	targets := secretTargets(&cfg)
	for _, key := range []string{"LARK_APP_SECRET", "LARK_VERIFICATION_TOKEN", "LARK_ENCRYPT_KEY", "REDIS_PASSWORD", "DATABASE_URL"} {
		if _, ok := targets[key]; !ok {
			t.Errorf("missing secret target %s", key)
		}
	}
	*targets["LARK_APP_SECRET"] = "from-vault"
	*targets["LARK_ENCRYPT_KEY"] = "ek"
	if cfg.LarkAppSecret != "from-vault" || cfg.LarkEncryptKey != "ek" {
		t.Error("secret target does not point at the config field")
	}
}
