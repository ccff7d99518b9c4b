// Package config loads service configuration from the environment, with
// every key overridable the same way regardless of whether it was first set
// in a .env file or the process environment (env always wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-overridable setting the core needs: the
// database connection tuple, the public URL used to build webhook
// registration links, and optional rail credentials.
type Config struct {
	DBPath string // file path / DSN for the sqlite-backed store

	BackendPublicURL string

	SCBAppKey      string
	SCBAppSecret   string
	SCBBaseURL     string
	KBankCustomerID     string
	KBankConsumerSecret string
	KBankOAuthURL       string
	OmiseSecretKey string
	StripeSecretKey string

	CryptoBEP20RPCURL  string
	CryptoBEP20USDTAddr string

	EMoneyLicensed bool // disables the midnight balance reset in the scheduler

	HTTPAddr string
}

// Load reads configuration from the environment. It first loads a .env file
// if present (ignored if missing) and then lets real environment variables
// override it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:           getEnv("FCH_DB_PATH", "file:foodcourt.db?_pragma=busy_timeout=5000"),
		BackendPublicURL: getEnv("FCH_BACKEND_URL", "http://localhost:8080"),

		SCBAppKey:    getEnv("FCH_SCB_APP_KEY", ""),
		SCBAppSecret: getEnv("FCH_SCB_APP_SECRET", ""),
		SCBBaseURL:   getEnv("FCH_SCB_BASE_URL", "https://api-sandbox.partners.scb/partners/sandbox"),

		KBankCustomerID:     getEnv("FCH_KBANK_CUSTOMER_ID", ""),
		KBankConsumerSecret: getEnv("FCH_KBANK_CONSUMER_SECRET", ""),
		KBankOAuthURL:       getEnv("FCH_KBANK_OAUTH_URL", "https://openapi-sandbox.kasikornbank.com/v2/oauth/token"),

		OmiseSecretKey:  getEnv("FCH_OMISE_SECRET_KEY", ""),
		StripeSecretKey: getEnv("FCH_STRIPE_SECRET_KEY", ""),

		CryptoBEP20RPCURL:   getEnv("FCH_CRYPTO_BEP20_RPC_URL", "https://bsc-dataseed.binance.org/"),
		CryptoBEP20USDTAddr: getEnv("FCH_CRYPTO_BEP20_USDT_ADDRESS", "0x55d398326f99059fF775485246999027B3197955"),

		EMoneyLicensed: getEnvBool("FCH_EMONEY_LICENSED", false),

		HTTPAddr: getEnv("FCH_HTTP_ADDR", ":8080"),
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("FCH_DB_PATH must not be empty")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// MidnightResetEnabled reports whether the scheduler should run the daily
// balance-reset / refund-notification sweep: only when the operator has not
// represented itself as e-money licensed.
func (c *Config) MidnightResetEnabled() bool { return !c.EMoneyLicensed }

// ParseDurationEnv is a small helper retained for scheduler bindings that
// want an env-tunable interval (e.g. settlement retry sweep cadence).
func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
