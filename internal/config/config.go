package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/ppah/verify-server-go/internal/util"
)

var knownWeakKeys = []string{
	"change-me", "dev-key-change-me", "secret", "test",
}

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	SessionTimeoutSeconds int    `env:"SESSION_TIMEOUT_SECONDS" envDefault:"3600"`
	MagicLinkTTLSeconds   int    `env:"MAGIC_LINK_TTL_SECONDS" envDefault:"900"`
	VerifyRateLimitPerMin int    `env:"VERIFY_RATE_LIMIT_PER_MIN" envDefault:"120"`
	RelyingPartyID        string `env:"RP_ID" envDefault:"localhost"`
	RelyingPartyName      string `env:"RP_NAME" envDefault:"PPAH Verification"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c *Config) MagicLinkTTL() time.Duration {
	return time.Duration(c.MagicLinkTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be positive")
	}

	if isProduction {
		if err := validateEncryptionKey(c.EncryptionKey); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	} else if c.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY is empty: session keys will be stored unencrypted")
	}

	return nil
}

func validateEncryptionKey(value string) error {
	if len(value) != 64 || !util.IsHex(value) {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 lowercase hex characters in production (generate with: openssl rand -hex 32)")
	}
	for _, weak := range knownWeakKeys {
		if value == weak {
			return fmt.Errorf("ENCRYPTION_KEY is a known weak default; set a strong key in production")
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
