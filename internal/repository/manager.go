package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	gameRunOnce sync.Once
	gameRun     GameRunRepository

	gameRewardOnce sync.Once
	gameReward     GameRewardRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB 获取数据库实例
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// GameRun 获取对局仓储
func (m *Manager) GameRun() GameRunRepository {
	m.gameRunOnce.Do(func() {
		m.gameRun = NewGameRunRepository(m.db)
	})
	return m.gameRun
}

// GameReward 获取奖励台账仓储
func (m *Manager) GameReward() GameRewardRepository {
	m.gameRewardOnce.Do(func() {
		m.gameReward = NewGameRewardRepository(m.db)
	})
	return m.gameReward
}
