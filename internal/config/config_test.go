package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("SessionTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{SessionTimeoutSeconds: 3600}
		assert.Equal(t, time.Hour, cfg.SessionTimeout())
	})

	t.Run("MagicLinkTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{MagicLinkTTLSeconds: 900}
		assert.Equal(t, 900*time.Second, cfg.MagicLinkTTL())
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults outside production", func(t *testing.T) {
		cfg := &Config{SessionTimeoutSeconds: 3600}
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive session timeout", func(t *testing.T) {
		cfg := &Config{SessionTimeoutSeconds: 0}
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("production requires a 64 hex char encryption key", func(t *testing.T) {
		cfg := &Config{SessionTimeoutSeconds: 3600, EncryptionKey: "short"}
		assert.Error(t, cfg.Validate(true))

		cfg.EncryptionKey = strings.Repeat("zz", 32) // right length, not hex
		assert.Error(t, cfg.Validate(true))

		cfg.EncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		assert.NoError(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	vars := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "ENCRYPTION_KEY",
		"SESSION_TIMEOUT_SECONDS", "MAGIC_LINK_TTL_SECONDS",
		"VERIFY_RATE_LIMIT_PER_MIN", "RP_ID", "RP_NAME", "LOG_LEVEL",
	}
	originalEnv := map[string]string{}
	for _, v := range vars {
		originalEnv[v] = os.Getenv(v)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("fails without required values", func(t *testing.T) {
		for _, v := range vars {
			os.Unsetenv(v)
		}
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		for _, v := range vars {
			os.Unsetenv(v)
		}
		os.Setenv("DATABASE_URL", "postgres://localhost/verify")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 3600, cfg.SessionTimeoutSeconds)
		assert.Equal(t, 900, cfg.MagicLinkTTLSeconds)
		assert.Equal(t, "localhost", cfg.RelyingPartyID)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("reads overrides", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/verify")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "9000")
		os.Setenv("SESSION_TIMEOUT_SECONDS", "60")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, time.Minute, cfg.SessionTimeout())
	})
}
