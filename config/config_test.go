package config

import (
	"errors"
	"strings"
	"testing"
)

const testPublicKey = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "bot-token")
	t.Setenv("DISCORD_APP_ID", "123456")
	t.Setenv("DISCORD_PUBLIC_KEY", testPublicKey)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PERSISTENCE_PROVIDER", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PersistenceProvider != PersistenceLocalFS {
		t.Errorf("PersistenceProvider = %q, want %q", cfg.PersistenceProvider, PersistenceLocalFS)
	}
	if cfg.AuthDir() != "data/auth" {
		t.Errorf("AuthDir() = %q, want data/auth", cfg.AuthDir())
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want :3000", cfg.HTTPAddr)
	}
	if len(cfg.DiscordPublicKey) != 32 {
		t.Errorf("public key length = %d, want 32", len(cfg.DiscordPublicKey))
	}
	if cfg.NSOClientID == "" || cfg.SplatnetURL == "" || cfg.UserAgent == "" {
		t.Errorf("expected upstream defaults, got %+v", cfg)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_APP_ID", "")
	t.Setenv("DISCORD_PUBLIC_KEY", testPublicKey)
	_, err := Load()
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	for _, name := range []string{"DISCORD_TOKEN", "DISCORD_APP_ID"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestLoadInvalidPublicKey(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_PUBLIC_KEY", "zz")
	if _, err := Load(); err == nil || errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}

func TestLoadRedis(t *testing.T) {
	setRequired(t)
	t.Setenv("PERSISTENCE_PROVIDER", "REDIS")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_USE_TLS", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PersistenceProvider != PersistenceRedis || cfg.RedisDB != 3 || !cfg.RedisUseTLS {
		t.Errorf("unexpected redis config: %+v", cfg)
	}

	t.Setenv("REDIS_DB", "three")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for non-numeric REDIS_DB")
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("PERSISTENCE_PROVIDER", "s3")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadStorageWithoutDiscord(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_APP_ID", "")
	t.Setenv("DISCORD_PUBLIC_KEY", "")
	t.Setenv("PERSISTENCE_PROVIDER", "")
	t.Setenv("DATA_DIR", "/var/lib/grizzpector")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_KEY_PREFIX", "")

	cfg, err := LoadStorage()
	if err != nil {
		t.Fatalf("LoadStorage() error: %v", err)
	}
	if cfg.PersistenceProvider != PersistenceLocalFS {
		t.Errorf("PersistenceProvider = %q, want %q", cfg.PersistenceProvider, PersistenceLocalFS)
	}
	if cfg.AuthDir() != "/var/lib/grizzpector/auth" {
		t.Errorf("AuthDir() = %q", cfg.AuthDir())
	}
	if cfg.RedisAddr != "redis:6380" || cfg.RedisDB != 3 || cfg.RedisKeyPrefix != "grizzpector:auth:" {
		t.Errorf("redis settings = %q db=%d prefix=%q", cfg.RedisAddr, cfg.RedisDB, cfg.RedisKeyPrefix)
	}

	t.Setenv("REDIS_DB", "three")
	if _, err := LoadStorage(); err == nil {
		t.Error("expected error for non-numeric REDIS_DB")
	}
}
