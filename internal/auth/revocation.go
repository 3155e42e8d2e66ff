package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const revokedKeyPrefix = "revoked-token::"

type Checker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

var _ Checker = (*RevocationChecker)(nil)

// RevocationChecker keeps revoked token ids in redis until the token would expire anyway.
type RevocationChecker struct {
	redisClient *redis.Client
}

func NewRevocationChecker(redisClient *redis.Client) *RevocationChecker {
	return &RevocationChecker{
		redisClient: redisClient,
	}
}

func (rc *RevocationChecker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := rc.redisClient.Get(ctx, revokedKeyPrefix+tokenID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// Revoke marks the token id as revoked for ttl, which should be the token's remaining lifetime.
func (rc *RevocationChecker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	if ttl <= 0 {
		// already expired, nothing to keep
		return nil
	}
	return rc.redisClient.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}
