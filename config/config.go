// Package config loads environment variables and provides a typed Config used across the service.
// Discord credentials are required; everything else has a default so the bot can run locally
// with a minimal .env file.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrConfigurationMissing is returned by Load when a required variable is unset.
var ErrConfigurationMissing = errors.New("configuration missing")

// Persistence backends accepted by PERSISTENCE_PROVIDER.
const (
	PersistenceLocalFS = "localfs"
	PersistenceRedis   = "redis"
)

// DefaultUserAgent is sent on every upstream request.
const DefaultUserAgent = "Grizzpector/1.0.0 (+https://github.com/Sandman-Ren/Grizzpector)"

// Config holds the bot's runtime settings, read once at startup.
type Config struct {
	// Discord
	DiscordToken     string
	DiscordAppID     string
	DiscordPublicKey ed25519.PublicKey

	// HTTP
	HTTPAddr string

	// Storage
	DataDir             string
	PersistenceProvider string

	// Redis (PERSISTENCE_PROVIDER=redis)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisUseTLS    bool
	RedisKeyPrefix string

	// Nintendo Switch Online account + coral API
	NSOClientID     string
	NSOAccountsURL  string
	NSOCoralURL     string
	NSOWebServiceID string

	// SplatNet 3
	SplatnetURL string

	UserAgent string
}

// AuthDir is the directory the local filesystem provider writes credential records to.
func (c *Config) AuthDir() string {
	return filepath.Join(c.DataDir, "auth")
}

// Load reads environment variables and applies defaults. A missing Discord credential is
// reported as ErrConfigurationMissing listing every absent variable.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DiscordToken = required("DISCORD_TOKEN")
	cfg.DiscordAppID = required("DISCORD_APP_ID")
	publicKey := required("DISCORD_PUBLIC_KEY")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	key, err := hex.DecodeString(publicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid DISCORD_PUBLIC_KEY: want %d hex-encoded bytes", ed25519.PublicKeySize)
	}
	cfg.DiscordPublicKey = ed25519.PublicKey(key)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":3000")

	if err := loadStorage(cfg); err != nil {
		return nil, err
	}

	// NSO
	cfg.NSOClientID = getEnv("NSO_CLIENT_ID", "71b963c1b7b6d119")
	cfg.NSOAccountsURL = strings.TrimRight(getEnv("NSO_ACCOUNTS_URL", "https://accounts.nintendo.com"), "/")
	cfg.NSOCoralURL = strings.TrimRight(getEnv("NSO_CORAL_URL", "https://api-lp1.znc.srv.nintendo.net"), "/")
	cfg.NSOWebServiceID = getEnv("NSO_WEB_SERVICE_ID", "4834290508791808")

	cfg.SplatnetURL = strings.TrimRight(getEnv("SPLATNET_URL", "https://api.lp1.av5ja.srv.nintendo.net"), "/")

	cfg.UserAgent = getEnv("USER_AGENT", DefaultUserAgent)

	return cfg, nil
}

// LoadStorage reads only the persistence settings (DATA_DIR, PERSISTENCE_PROVIDER and
// REDIS_*). Tools that move credential records use it without Discord credentials.
func LoadStorage() (*Config, error) {
	cfg := &Config{}
	if err := loadStorage(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadStorage(cfg *Config) error {
	cfg.DataDir = getEnv("DATA_DIR", "data")
	cfg.PersistenceProvider = strings.ToLower(getEnv("PERSISTENCE_PROVIDER", PersistenceLocalFS))
	switch cfg.PersistenceProvider {
	case PersistenceLocalFS, PersistenceRedis:
	default:
		return fmt.Errorf("invalid PERSISTENCE_PROVIDER %q (want %s or %s)", cfg.PersistenceProvider, PersistenceLocalFS, PersistenceRedis)
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}
	cfg.RedisUseTLS = os.Getenv("REDIS_USE_TLS") == "true"
	cfg.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", "grizzpector:auth:")
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
