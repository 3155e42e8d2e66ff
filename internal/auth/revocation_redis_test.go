//go:build integration_test

package auth

import (
	"testing"
	"time"

	testingpkg "github.com/2beens/coachprogress/pkg/testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevocationChecker_RealRedis(t *testing.T) {
	ctx, rdb := testingpkg.GetRedisClientAndCtx(t)
	checker := NewRevocationChecker(rdb)

	tokenID := gofakeit.UUID()
	t.Cleanup(func() {
		rdb.Del(ctx, revokedKeyPrefix+tokenID)
	})

	revoked, err := checker.IsRevoked(ctx, tokenID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, checker.Revoke(ctx, tokenID, time.Minute))

	revoked, err = checker.IsRevoked(ctx, tokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := rdb.TTL(ctx, revokedKeyPrefix+tokenID).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
	assert.Greater(t, ttl, time.Duration(0))

	// an already expired token is not stored at all
	expiredID := gofakeit.UUID()
	require.NoError(t, checker.Revoke(ctx, expiredID, -time.Second))
	revoked, err = checker.IsRevoked(ctx, expiredID)
	require.NoError(t, err)
	assert.False(t, revoked)
}
