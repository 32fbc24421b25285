package database

import (
	"fmt"

	"github.com/wfunc/runner-game/internal/logger"
	"github.com/wfunc/runner-game/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 多进程同时启动时只允许一个进程执行迁移
	if dbPath := sqliteFilePath(DB); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	return Migrate(DB)
}

// Migrate 迁移对局与奖励表结构并补充索引
func Migrate(db *gorm.DB) error {
	logger.Info("开始数据库迁移...")

	migrationModels := []interface{}{
		&models.GameRun{},
		&models.GameReward{},
	}

	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建排行榜与领奖查询使用的组合索引
func createIndexes(db *gorm.DB) {
	indexes := map[string]string{
		"idx_runs_eligible":    "CREATE INDEX IF NOT EXISTS idx_runs_eligible ON game_runs(status, is_eligible_for_reward)",
		"idx_runs_leaderboard": "CREATE INDEX IF NOT EXISTS idx_runs_leaderboard ON game_runs(status, start_time, score)",
		"idx_rewards_user":     "CREATE INDEX IF NOT EXISTS idx_rewards_user ON game_rewards(user_id, status)",
	}

	for name, stmt := range indexes {
		if db.Dialector.Name() == "mysql" {
			// MySQL 不支持 CREATE INDEX IF NOT EXISTS
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}
