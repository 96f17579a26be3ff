package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestTokenBucket_BurstThenDeny(t *testing.T) {
	bucket := NewTokenBucket(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := bucket.Allow(ctx, "bucket:test", 1, 3)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should pass within burst", i)
	}

	result, err := bucket.Allow(ctx, "bucket:test", 1, 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestTokenBucket_KeysAreIndependent(t *testing.T) {
	bucket := NewTokenBucket(newTestRedis(t))
	ctx := context.Background()

	result, err := bucket.Allow(ctx, "bucket:a", 1, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = bucket.Allow(ctx, "bucket:a", 1, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = bucket.Allow(ctx, "bucket:b", 1, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucket_InvalidArguments(t *testing.T) {
	bucket := NewTokenBucket(newTestRedis(t))
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "bucket:test", 0, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "bucket:test", 1, 0)
	assert.Error(t, err)
}

func TestTokenBucket_NilClient(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))

	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "bucket:test", 1, 1)
	assert.Error(t, err)
}

func TestLocker_SingleHolder(t *testing.T) {
	locker := NewLocker(newTestRedis(t))
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "jobs:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "jobs:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "jobs:test", token))

	_, ok, err = locker.TryLock(ctx, "jobs:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_ReleaseWithWrongTokenKeepsLock(t *testing.T) {
	locker := NewLocker(newTestRedis(t))
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "jobs:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "jobs:test", "someone-elses-token"))

	_, ok, err = locker.TryLock(ctx, "jobs:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
