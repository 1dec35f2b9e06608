package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// ResetTokenStore marks password-reset tokens as consumed so a leaked link
// cannot be replayed within its validity window. When Redis is not
// configured the store degrades to a no-op and tokens rely on expiry alone.
type ResetTokenStore struct {
	client *redis.Client
}

func NewResetTokenStore(redisURL string) *ResetTokenStore {
	if redisURL == "" {
		return &ResetTokenStore{}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, reset tokens will be single-use by expiry only")
		return &ResetTokenStore{}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, reset tokens will be single-use by expiry only")
		return &ResetTokenStore{}
	}

	return &ResetTokenStore{client: client}
}

func resetTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "reset:used:" + hex.EncodeToString(sum[:])
}

// MarkUsed flags a token as consumed for the remainder of its lifetime.
func (s *ResetTokenStore) MarkUsed(ctx context.Context, token string, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	return s.client.Set(ctx, resetTokenKey(token), "1", ttl).Err()
}

// IsUsed reports whether a token has already been consumed.
func (s *ResetTokenStore) IsUsed(ctx context.Context, token string) bool {
	if s.client == nil {
		return false
	}
	n, err := s.client.Exists(ctx, resetTokenKey(token)).Result()
	if err != nil {
		log.Error().Err(err).Msg("reset token lookup failed")
		return false
	}
	return n > 0
}
