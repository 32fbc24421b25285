package ratelimit

import (
	"context"
	"time"

	"github.com/wfunc/runner-game/internal/config"
)

// Limiter 滑动窗口限流器。
// 窗口内（严格晚于 now-window）的请求数小于 max 时放行并记录本次请求。
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Action 限流动作，不同动作使用独立的键空间和预算
type Action string

const (
	ActionStart       Action = "start"
	ActionFinish      Action = "finish"
	ActionClaim       Action = "claim"
	ActionLeaderboard Action = "leaderboard"
	ActionStats       Action = "stats"
)

// Budget 单个动作的限流预算
type Budget struct {
	Max    int
	Window time.Duration
}

// Budgets 各动作的预算
type Budgets map[Action]Budget

// DefaultBudgets 默认预算
func DefaultBudgets() Budgets {
	return Budgets{
		ActionStart:       {Max: 10, Window: time.Minute},
		ActionFinish:      {Max: 20, Window: time.Minute},
		ActionClaim:       {Max: 5, Window: time.Minute},
		ActionLeaderboard: {Max: 30, Window: time.Minute},
		ActionStats:       {Max: 60, Window: time.Minute},
	}
}

// BudgetsFromConfig 用配置覆盖默认预算，配置缺失或非法的动作保留默认值
func BudgetsFromConfig(cfg config.RateLimitConfig) Budgets {
	budgets := DefaultBudgets()
	for name, b := range cfg.Actions {
		if b.Max <= 0 || b.Window <= 0 {
			continue
		}
		budgets[Action(name)] = Budget{Max: b.Max, Window: b.Window}
	}
	return budgets
}

// MaxWindow 所有预算中最长的窗口
func (b Budgets) MaxWindow() time.Duration {
	var longest time.Duration
	for _, budget := range b {
		if budget.Window > longest {
			longest = budget.Window
		}
	}
	return longest
}

// Key 生成限流键，如 start_<userId>、leaderboard_<ip>
func Key(action Action, subject string) string {
	return string(action) + "_" + subject
}

// Guard 按动作预算调用限流器
type Guard struct {
	limiter Limiter
	budgets Budgets
	enabled bool
}

// NewGuard 创建限流守卫，limiter 为 nil 时不限流
func NewGuard(limiter Limiter, budgets Budgets) *Guard {
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	return &Guard{
		limiter: limiter,
		budgets: budgets,
		enabled: limiter != nil,
	}
}

// Allow 判断 subject 执行 action 是否在预算内
func (g *Guard) Allow(ctx context.Context, action Action, subject string) (bool, error) {
	if g == nil || !g.enabled {
		return true, nil
	}
	budget, ok := g.budgets[action]
	if !ok {
		return true, nil
	}
	return g.limiter.Allow(ctx, Key(action, subject), budget.Max, budget.Window)
}

// Budgets 返回当前预算
func (g *Guard) Budgets() Budgets {
	return g.budgets
}
