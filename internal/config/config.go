// Package config loads runtime configuration from the environment,
// with an optional .env file for development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Defaults used when no relay configuration is provided.
var (
	DefaultReadRelays = []string{
		"wss://relay.damus.io",
		"wss://relay.nostr.band",
		"wss://nos.lol",
	}
	DefaultWriteRelays = []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
	}
	DefaultIndexerRelays = []string{
		"wss://purplepag.es",
		"wss://relay.nostr.band",
	}
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `env:"NODUS_LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"NODUS_LOG_LEVEL" envDefault:"info"`

	// PrivateKey is the signing key, hex or bech32. Required for any
	// publishing operation; read-only mode works without it.
	PrivateKey string `env:"NODUS_PRIVATE_KEY"`

	ReadRelays    []string `env:"NODUS_READ_RELAYS" envSeparator:","`
	WriteRelays   []string `env:"NODUS_WRITE_RELAYS" envSeparator:","`
	IndexerRelays []string `env:"NODUS_INDEXER_RELAYS" envSeparator:","`

	// RedisURL enables the shared cache backend; empty means in-process
	// memory caching.
	RedisURL string `env:"NODUS_REDIS_URL"`

	// DMNip44 switches direct messages to the versioned payload format.
	DMNip44 bool `env:"NODUS_DM_NIP44" envDefault:"false"`
}

// Load reads .env when present, then the environment, then fills
// relay defaults.
func Load() (*Config, error) {
	// Missing .env is fine, environment variables still apply
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if len(cfg.ReadRelays) == 0 {
		cfg.ReadRelays = append([]string{}, DefaultReadRelays...)
	}
	if len(cfg.WriteRelays) == 0 {
		cfg.WriteRelays = append([]string{}, DefaultWriteRelays...)
	}
	if len(cfg.IndexerRelays) == 0 {
		cfg.IndexerRelays = append([]string{}, DefaultIndexerRelays...)
	}

	return cfg, nil
}
