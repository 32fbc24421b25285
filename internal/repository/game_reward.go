package repository

import (
	"context"

	"github.com/wfunc/runner-game/internal/database"
	"github.com/wfunc/runner-game/internal/models"
	"gorm.io/gorm"
)

// GameRewardRepository 奖励台账仓储接口
type GameRewardRepository interface {
	BaseRepository
	FindByRun(ctx context.Context, runID, userID string) (*models.GameReward, error)
	CreateIfAbsent(ctx context.Context, reward *models.GameReward) error
	Totals(ctx context.Context, userID string) (*RewardTotals, error)
}

// RewardTotals 玩家已发放奖励汇总
type RewardTotals struct {
	TotalRewards int64 `json:"totalRewards"`
	TotalClaims  int64 `json:"totalClaims"`
}

// gameRewardRepo 奖励台账仓储实现
type gameRewardRepo struct {
	*BaseRepo
}

// NewGameRewardRepository 创建奖励台账仓储
func NewGameRewardRepository(db *gorm.DB) GameRewardRepository {
	return &gameRewardRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// FindByRun 查找对局的奖励记录
func (r *gameRewardRepo) FindByRun(ctx context.Context, runID, userID string) (*models.GameReward, error) {
	var reward models.GameReward
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND user_id = ?", runID, userID).
		First(&reward).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &reward, nil
}

// CreateIfAbsent 依赖 run_id 唯一索引插入，已存在时返回 ErrRewardConflict
func (r *gameRewardRepo) CreateIfAbsent(ctx context.Context, reward *models.GameReward) error {
	err := r.db.WithContext(ctx).Create(reward).Error
	if database.IsDuplicateKey(err) {
		return ErrRewardConflict
	}
	return err
}

// Totals 汇总已完成发放的奖励
func (r *gameRewardRepo) Totals(ctx context.Context, userID string) (*RewardTotals, error) {
	var totals RewardTotals
	err := r.db.WithContext(ctx).
		Model(&models.GameReward{}).
		Select("COALESCE(SUM(amount), 0) AS total_rewards, COUNT(*) AS total_claims").
		Where("user_id = ? AND status = ?", userID, models.RewardStatusCompleted).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
