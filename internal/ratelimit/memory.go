package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu     sync.Mutex
	hits   []time.Time
	window time.Duration
	// dead 表示已被清理出 map，持有者需要重新获取
	dead bool
}

// prune 丢弃不晚于 cutoff 的记录
func (b *bucket) prune(cutoff time.Time) {
	i := 0
	for i < len(b.hits) && !b.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.hits = append(b.hits[:0], b.hits[i:]...)
	}
}

// MemoryLimiter 进程内滑动窗口限流器。
// 每个键一把锁，不同键互不阻塞。
type MemoryLimiter struct {
	buckets sync.Map // key -> *bucket
	now     func() time.Time
}

// MemoryOption 内存限流器选项
type MemoryOption func(*MemoryLimiter)

// WithClock 注入时钟
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		m.now = now
	}
}

// NewMemoryLimiter 创建内存限流器
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow 实现 Limiter
func (m *MemoryLimiter) Allow(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	for {
		v, _ := m.buckets.LoadOrStore(key, &bucket{})
		b := v.(*bucket)

		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}

		now := m.now()
		b.window = window
		b.prune(now.Add(-window))

		if len(b.hits) >= max {
			b.mu.Unlock()
			return false, nil
		}
		b.hits = append(b.hits, now)
		b.mu.Unlock()
		return true, nil
	}
}

// Sweep 清理窗口内已无记录的键，返回清理数量
func (m *MemoryLimiter) Sweep() int {
	now := m.now()
	removed := 0

	m.buckets.Range(func(k, v interface{}) bool {
		b := v.(*bucket)
		b.mu.Lock()
		b.prune(now.Add(-b.window))
		if len(b.hits) == 0 {
			b.dead = true
			m.buckets.Delete(k)
			removed++
		}
		b.mu.Unlock()
		return true
	})

	return removed
}

// Len 当前跟踪的键数量
func (m *MemoryLimiter) Len() int {
	n := 0
	m.buckets.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
