package service

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ppah/verify-server-go/internal/audit"
	apperrors "github.com/ppah/verify-server-go/internal/errors"
	redisclient "github.com/ppah/verify-server-go/internal/redis"
	"github.com/ppah/verify-server-go/internal/util"
)

type MagicLinkResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MagicLinkService issues single-use expiring login tokens. Redis with a TTL
// is the whole store; consumption is a GETDEL so a token can never be used
// twice.
type MagicLinkService struct {
	redis *redisclient.Client
	ttl   time.Duration
}

func NewMagicLinkService(redisClient *redisclient.Client, ttl time.Duration) *MagicLinkService {
	return &MagicLinkService{
		redis: redisClient,
		ttl:   ttl,
	}
}

func (s *MagicLinkService) Issue(ctx context.Context, email string) (*MagicLinkResult, error) {
	token, err := util.GenerateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("generate magic link token: %w", err)
	}

	key := redisclient.MagicLinkKey(token)
	if err := s.redis.Set(ctx, key, email, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store magic link: %w", err)
	}

	audit.Log(audit.Event{
		Type:  audit.EventMagicLinkIssued,
		Email: email,
	})
	log.Info().Str("email", email).Dur("ttl", s.ttl).Msg("magic link issued")

	return &MagicLinkResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl),
	}, nil
}

// Consume redeems a token and returns the email it was issued for.
func (s *MagicLinkService) Consume(ctx context.Context, token string) (string, error) {
	key := redisclient.MagicLinkKey(token)

	email, err := s.redis.GetDel(ctx, key).Result()
	if err == goredis.Nil {
		return "", apperrors.TokenExpired()
	}
	if err != nil {
		return "", fmt.Errorf("redeem magic link: %w", err)
	}

	audit.Log(audit.Event{
		Type:  audit.EventMagicLinkConsumed,
		Email: email,
	})

	return email, nil
}
