package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/runner-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建迁移好的内存数据库。
// 单连接保证所有 goroutine 看到同一个内存库，并发写入由连接池串行化。
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		panic(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.GameRun{}, &models.GameReward{}); err != nil {
		panic(err)
	}
	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// TestRunOption 测试对局选项
type TestRunOption func(*models.GameRun)

// WithStatus 设置对局状态，非进行中的对局不持有唯一锁
func WithStatus(status string) TestRunOption {
	return func(r *models.GameRun) {
		r.Status = status
		if status != models.RunStatusActive {
			r.ActiveLock = nil
		}
	}
}

// WithResult 设置对局成绩
func WithResult(score int64, distance float64, duration int64) TestRunOption {
	return func(r *models.GameRun) {
		r.Score = score
		r.Distance = distance
		r.Duration = duration
	}
}

// WithReward 设置可领奖状态与金额
func WithReward(amount int64) TestRunOption {
	return func(r *models.GameRun) {
		r.IsEligibleForReward = true
		r.RewardAmount = amount
	}
}

// WithStartTime 设置开始时间
func WithStartTime(t time.Time) TestRunOption {
	return func(r *models.GameRun) {
		r.StartTime = t
	}
}

// CreateTestRun 构造测试对局（默认进行中）
func CreateTestRun(userID string, opts ...TestRunOption) *models.GameRun {
	lock := userID
	run := &models.GameRun{
		RunID:       uuid.NewString(),
		UserID:      userID,
		GameType:    models.DefaultGameType,
		Status:      models.RunStatusActive,
		ServerNonce: fmt.Sprintf("nonce-%s", uuid.NewString()),
		ActiveLock:  &lock,
		StartTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(run)
	}
	return run
}
