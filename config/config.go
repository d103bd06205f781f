// Package config loads runtime settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvProduction = "production"

	// devSessionSecret must match the SESSION_SECRET envDefault below.
	devSessionSecret = "dev-session-secret-change-me"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":5200"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL    string   `env:"DATABASE_URL"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SessionSecret string        `env:"SESSION_SECRET" envDefault:"dev-session-secret-change-me"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	NonceTTL      time.Duration `env:"NONCE_TTL" envDefault:"5m"`

	PartyTTL  time.Duration `env:"PARTY_TTL" envDefault:"30m"`
	GatesFile string        `env:"GATES_FILE" envDefault:"data/gates.yaml"`
	RedisURL  string        `env:"REDIS_URL"`

	Chain ChainConfig
	R2    R2Config

	MetricsToken          string        `env:"METRICS_TOKEN"`
	InventorySyncInterval time.Duration `env:"INVENTORY_SYNC_INTERVAL" envDefault:"10m"`
}

type ChainConfig struct {
	RPCURL            string        `env:"CHAIN_RPC_URL" envDefault:"http://127.0.0.1:8545"`
	ChainID           int64         `env:"CHAIN_ID" envDefault:"31337"`
	PrivateKey        string        `env:"CHAIN_PRIVATE_KEY"`
	BossEventsAddress string        `env:"BOSS_EVENTS_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	RelicNFTAddress   string        `env:"RELIC_NFT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	PlayerSBTAddress  string        `env:"PLAYER_SBT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	TxTimeout         time.Duration `env:"CHAIN_TX_TIMEOUT" envDefault:"90s"`
}

type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

// Enabled reports whether enough R2 settings are present to use object storage.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects settings that are only acceptable outside production.
func (c *Config) validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if secret := strings.TrimSpace(c.SessionSecret); secret == "" || secret == devSessionSecret {
		return fmt.Errorf("SESSION_SECRET must be set to a private value in production")
	}
	return nil
}
