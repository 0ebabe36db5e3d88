package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                 int
	NatsURL              string
	NatsToken            string
	DatabaseURL          string
	LogLevel             string
	APIToken             string
	LedgerRPCURL         string
	IdentityAPIURL       string
	IdentityClientID     string
	IdentityClientSecret string
	PriceAPIURL          string
	PriceCacheTTLSeconds int
}

func Load() Config {
	return Config{
		Port:                 envInt("TRUSTD_PORT", 8087),
		NatsURL:              envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:            envStr("NATS_TOKEN", ""),
		DatabaseURL:          envStr("DATABASE_URL", ""),
		LogLevel:             envStr("LOG_LEVEL", "info"),
		APIToken:             envStr("TRUSTD_API_TOKEN", ""),
		LedgerRPCURL:         envStr("LEDGER_RPC_URL", "https://api.mainnet-beta.solana.com"),
		IdentityAPIURL:       envStr("IDENTITY_API_URL", "https://api.x.com"),
		IdentityClientID:     envStr("IDENTITY_CLIENT_ID", ""),
		IdentityClientSecret: envStr("IDENTITY_CLIENT_SECRET", ""),
		PriceAPIURL:          envStr("PRICE_API_URL", "https://api.coingecko.com"),
		PriceCacheTTLSeconds: envInt("PRICE_CACHE_TTL_SECONDS", 300),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
