package service

import (
	"time"

	"github.com/wfunc/runner-game/internal/config"
	"github.com/wfunc/runner-game/internal/game"
	"github.com/wfunc/runner-game/internal/ratelimit"
	"github.com/wfunc/runner-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 服务配置
type Config struct {
	Thresholds     game.Thresholds
	ActiveLookback time.Duration
	MinRewardScore int64
	StaleAfter     time.Duration
	RecentRuns     int
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Thresholds:     game.DefaultThresholds(),
		ActiveLookback: 10 * time.Minute,
		MinRewardScore: 100,
		StaleAfter:     10 * time.Minute,
		RecentRuns:     10,
	}
}

// ConfigFromApp 由应用配置生成服务配置，未设置的字段保留默认值
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	g := cfg.Game

	if g.MinDuration > 0 {
		c.Thresholds.MinDuration = g.MinDuration
	}
	if g.MaxDuration > 0 {
		c.Thresholds.MaxDuration = g.MaxDuration
	}
	if g.MaxSpeed > 0 {
		c.Thresholds.MaxSpeed = g.MaxSpeed
	}
	if g.ScoreTolerance > 0 {
		c.Thresholds.ScoreTolerance = g.ScoreTolerance
	}
	if g.ServerTimeTolerance > 0 {
		c.Thresholds.ServerTimeTolerance = g.ServerTimeTolerance
	}
	if g.ActiveLookback > 0 {
		c.ActiveLookback = g.ActiveLookback
	}
	if g.MinRewardScore > 0 {
		c.MinRewardScore = g.MinRewardScore
	}
	if cfg.Reaper.StaleAfter > 0 {
		c.StaleAfter = cfg.Reaper.StaleAfter
	}
	return c
}

// Services 服务集合
type Services struct {
	Game GameService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, config *Config, guard *ratelimit.Guard, notifier RewardNotifier, log *zap.Logger) *Services {
	repos := repository.NewManager(db)

	gameService := NewGameService(
		repos.GameRun(),
		repos.GameReward(),
		guard,
		config,
		log,
		WithNotifier(notifier),
	)

	return &Services{
		Game: gameService,
	}
}
