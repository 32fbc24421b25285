package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/runner-game/internal/config"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiter_AllowsUpToMax(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "claim_u1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "第 %d 次请求应放行", i+1)
	}

	ok, err := l.Allow(ctx, "claim_u1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 被拒绝的请求不计入窗口
	clock.Advance(time.Minute + time.Millisecond)
	ok, _ = l.Allow(ctx, "claim_u1", 5, time.Minute)
	assert.True(t, ok)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))

	ok, _ := l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	clock.Advance(30 * time.Second)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.False(t, ok)

	// 恰好一个窗口后第一条记录过期
	clock.Advance(30 * time.Second)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.False(t, ok)
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	ok, _ := l.Allow(ctx, Key(ActionStart, "u1"), 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, Key(ActionStart, "u1"), 1, time.Minute)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, Key(ActionStart, "u2"), 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, Key(ActionFinish, "u1"), 1, time.Minute)
	assert.True(t, ok)
}

func TestMemoryLimiter_ZeroMax(t *testing.T) {
	ok, err := NewMemoryLimiter().Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLimiter_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "claim_u1", 5, time.Minute); ok {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), allowed)
}

func TestMemoryLimiter_SweepWhileAllowing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		_, _ = l.Allow(ctx, fmt.Sprintf("k%d", i), 3, time.Second)
	}
	assert.Equal(t, 10, l.Len())

	// 窗口内不清理
	assert.Equal(t, 0, l.Sweep())

	clock.Advance(2 * time.Second)
	var wg sync.WaitGroup
	var allowed int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "hot", 3, time.Second); ok {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	l.Sweep()
	wg.Wait()

	assert.Equal(t, int64(3), allowed)
	l.Sweep()
	assert.Equal(t, 1, l.Len(), "只剩仍在窗口内的 hot 键")
}

func TestBudgetsFromConfig(t *testing.T) {
	budgets := BudgetsFromConfig(config.RateLimitConfig{
		Actions: map[string]config.BudgetConfig{
			"claim":  {Max: 2, Window: 30 * time.Second},
			"finish": {Max: 0, Window: time.Minute},
		},
	})

	assert.Equal(t, Budget{Max: 2, Window: 30 * time.Second}, budgets[ActionClaim])
	assert.Equal(t, DefaultBudgets()[ActionFinish], budgets[ActionFinish])
	assert.Equal(t, time.Minute, budgets.MaxWindow())
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryLimiter(), Budgets{ActionClaim: {Max: 1, Window: time.Minute}})

	ok, err := g.Allow(ctx, ActionClaim, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = g.Allow(ctx, ActionClaim, "u1")
	assert.False(t, ok)

	// 未配置预算的动作不限流
	ok, _ = g.Allow(ctx, ActionStats, "u1")
	assert.True(t, ok)

	// 无限流器时全部放行
	var disabled *Guard
	ok, _ = disabled.Allow(ctx, ActionClaim, "u1")
	assert.True(t, ok)
	ok, _ = NewGuard(nil, nil).Allow(ctx, ActionClaim, "u1")
	assert.True(t, ok)
}
