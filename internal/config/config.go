package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	FrontendOrigin string

	BlockscoutGraphQLURL string
	BlockscoutAPIURL     string
	ChainRPCURL          string
	BridgeRPCURL         string
	NativeSymbol         string
	ProjectsPath         string
	BridgesPath          string

	BlockInterval     time.Duration
	FallbackChainHead uint64
	ReportTimezone    string
	RequestTimeout    time.Duration
	MaxPages          int
	PageSize          int
	FetchConcurrency  int

	LiquidityPollInterval  time.Duration
	LiquidityDropThreshold float64

	LarkBaseURL           string
	LarkAppID             string
	LarkAppSecret         string
	LarkVerificationToken string
	LarkEncryptKey        string

	DatabaseURL   string
	RedisURL      string
	RedisPassword string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),

		BlockscoutGraphQLURL: envOr("BLOCKSCOUT_GRAPHQL_URL", "https://hashkey.blockscout.com/api/v1/graphql"),
		BlockscoutAPIURL:     envOr("BLOCKSCOUT_API_URL", "https://hashkey.blockscout.com/api/v2"),
		ChainRPCURL:          envOr("CHAIN_RPC_URL", "https://mainnet.hsk.xyz"),
		BridgeRPCURL:         envOr("BRIDGE_RPC_URL", "https://ethereum.public.blockpi.network/v1/rpc/public"),
		NativeSymbol:         envOr("NATIVE_SYMBOL", "HSK"),
		ProjectsPath:         envOr("PROJECTS_PATH", "config/projects.json"),
		BridgesPath:          envOr("BRIDGES_PATH", "config/bridges.json"),

		BlockInterval:     envDuration("BLOCK_INTERVAL", 2*time.Second),
		FallbackChainHead: uint64(envInt("FALLBACK_CHAIN_HEAD", 1_000_000)),
		ReportTimezone:    envOr("REPORT_TIMEZONE", "Asia/Shanghai"),
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 10*time.Second),
		MaxPages:          envInt("MAX_PAGES", 50),
		PageSize:          envInt("PAGE_SIZE", 100),
		FetchConcurrency:  envInt("FETCH_CONCURRENCY", 8),

		LiquidityPollInterval:  envDuration("LIQUIDITY_POLL_INTERVAL", 5*time.Minute),
		LiquidityDropThreshold: envFloat("LIQUIDITY_DROP_THRESHOLD", 0.10),

		LarkBaseURL:           envOr("LARK_BASE_URL", "https://open.larksuite.com"),
		LarkAppID:             os.Getenv("LARK_APP_ID"),
		LarkAppSecret:         os.Getenv("LARK_APP_SECRET"),
		LarkVerificationToken: os.Getenv("LARK_VERIFICATION_TOKEN"),
		LarkEncryptKey:        os.Getenv("LARK_ENCRYPT_KEY"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// secretTargets maps Infisical keys to the fields they fill.
func secretTargets(cfg *Config) map[string]*string {
	return map[string]*string{
		"LARK_APP_SECRET":         &cfg.LarkAppSecret,
		"LARK_VERIFICATION_TOKEN": &cfg.LarkVerificationToken,
		"LARK_ENCRYPT_KEY":        &cfg.LarkEncryptKey,
		"REDIS_PASSWORD":          &cfg.RedisPassword,
		"DATABASE_URL":            &cfg.DatabaseURL,
	}
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	for key, target := range secretTargets(cfg) {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer env, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		slog.Warn("invalid number env, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration env, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}
