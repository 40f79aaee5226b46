package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "token_blacklist:"

// TokenBlacklist tracks revoked token identifiers in Redis. Entries carry
// a TTL matching the token expiry so the set cleans itself up.
type TokenBlacklist struct {
	client *redis.Client
}

// NewTokenBlacklist creates a blacklist backed by the given Redis client
func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

// Add marks a token JTI as revoked for the given duration
func (b *TokenBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("jti is required")
	}
	if err := b.client.Set(ctx, blacklistKeyPrefix+jti, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token JTI has been revoked
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := b.client.Get(ctx, blacklistKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return true, nil
}
