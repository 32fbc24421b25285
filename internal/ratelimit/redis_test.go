package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis：RUNNER_GAME_TEST_REDIS=127.0.0.1:6379
func newTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("RUNNER_GAME_TEST_REDIS")
	if addr == "" {
		t.Skip("未设置 RUNNER_GAME_TEST_REDIS，跳过 Redis 限流测试")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis 不可用: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter_AllowsUpToMax(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisLimiter(client, "test:ratelimit:")
	key := Key(ActionClaim, uuid.NewString())

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.PTTL(ctx, "test:ratelimit:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisLimiter_WindowExpiry(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	clock := newFakeClock()
	l := NewRedisLimiter(client, "test:ratelimit:")
	l.now = clock.Now
	key := Key(ActionStart, uuid.NewString())

	ok, _ := l.Allow(ctx, key, 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, key, 1, time.Minute)
	assert.False(t, ok)

	clock.Advance(time.Minute + time.Millisecond)
	ok, err := l.Allow(ctx, key, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
