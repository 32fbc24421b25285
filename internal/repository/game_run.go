package repository

import (
	"context"
	"time"

	"github.com/wfunc/runner-game/internal/database"
	"github.com/wfunc/runner-game/internal/models"
	"gorm.io/gorm"
)

// GameRunRepository 对局仓储接口
type GameRunRepository interface {
	BaseRepository
	Create(ctx context.Context, run *models.GameRun) error
	FindActive(ctx context.Context, runID, userID string) (*models.GameRun, error)
	FindEligible(ctx context.Context, runID, userID string) (*models.GameRun, error)
	FindActiveForUser(ctx context.Context, userID string, since time.Time) (*models.GameRun, error)
	CountActiveSince(ctx context.Context, userID string, since time.Time) (int64, error)
	Complete(ctx context.Context, runID, userID string, c *RunCompletion) error
	MarkClaimed(ctx context.Context, runID, userID string) error
	AbandonStale(ctx context.Context, before time.Time) (int64, error)
	AbandonStaleForUser(ctx context.Context, userID string, before time.Time) (int64, error)
	Leaderboard(ctx context.Context, since *time.Time, p *Pagination) ([]*LeaderboardEntry, error)
	PlayerStats(ctx context.Context, userID string) (*PlayerStats, error)
	CountBetterPlayers(ctx context.Context, bestScore int64) (int64, error)
	RecentRuns(ctx context.Context, userID string, limit int) ([]*models.GameRun, error)
}

// RunCompletion 结束对局时一次性写入的字段
type RunCompletion struct {
	EndTime        time.Time
	Duration       int64
	Score          int64
	Distance       float64
	CoinsCollected int64
	PowerUpsUsed   int64
	Status         string
	Eligible       bool
	RewardAmount   int64

	// 可疑计数增量
	SpeedViolations     int
	ImpossibleMoves     int
	TimeInconsistencies int
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	UserID        string  `json:"userId"`
	BestScore     int64   `json:"bestScore"`
	TotalDistance float64 `json:"totalDistance"`
	TotalRuns     int64   `json:"totalRuns"`
	TotalRewards  int64   `json:"totalRewards"`
}

// PlayerStats 玩家已完成对局的汇总
type PlayerStats struct {
	TotalRuns     int64   `json:"totalRuns"`
	BestScore     int64   `json:"bestScore"`
	TotalDistance float64 `json:"totalDistance"`
	TotalCoins    int64   `json:"totalCoins"`
	AverageScore  float64 `json:"averageScore"`
	TotalPlayTime int64   `json:"totalPlayTime"`
}

// gameRunRepo 对局仓储实现
type gameRunRepo struct {
	*BaseRepo
}

// NewGameRunRepository 创建对局仓储
func NewGameRunRepository(db *gorm.DB) GameRunRepository {
	return &gameRunRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建对局，进行中对局的唯一锁冲突返回 ErrActiveRunExists
func (r *gameRunRepo) Create(ctx context.Context, run *models.GameRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if database.IsDuplicateKey(err) {
		return ErrActiveRunExists
	}
	return err
}

// FindActive 查找用户的进行中对局
func (r *gameRunRepo) FindActive(ctx context.Context, runID, userID string) (*models.GameRun, error) {
	var run models.GameRun
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND user_id = ? AND status = ?", runID, userID, models.RunStatusActive).
		First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// FindEligible 查找已完成、可领奖且未领取的对局
func (r *gameRunRepo) FindEligible(ctx context.Context, runID, userID string) (*models.GameRun, error) {
	var run models.GameRun
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND user_id = ?", runID, userID).
		Where("status = ? AND is_eligible_for_reward = ? AND reward_claimed = ?", models.RunStatusCompleted, true, false).
		First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// FindActiveForUser 查找 since 之后开始的进行中对局
func (r *gameRunRepo) FindActiveForUser(ctx context.Context, userID string, since time.Time) (*models.GameRun, error) {
	var run models.GameRun
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND start_time >= ?", userID, models.RunStatusActive, since).
		Order("start_time desc").
		First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// CountActiveSince 统计 since 之后开始的进行中对局数量
func (r *gameRunRepo) CountActiveSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Where("user_id = ? AND status = ? AND start_time >= ?", userID, models.RunStatusActive, since).
		Count(&count).Error
	return count, err
}

// Complete 以单条条件更新结束对局，对局不是进行中时返回 ErrRunNotActive
func (r *gameRunRepo) Complete(ctx context.Context, runID, userID string, c *RunCompletion) error {
	updates := map[string]interface{}{
		"end_time":               c.EndTime,
		"duration":               c.Duration,
		"score":                  c.Score,
		"distance":               c.Distance,
		"coins_collected":        c.CoinsCollected,
		"power_ups_used":         c.PowerUpsUsed,
		"status":                 c.Status,
		"is_eligible_for_reward": c.Eligible,
		"reward_amount":          c.RewardAmount,
		"active_lock":            nil,
		"speed_violations":       gorm.Expr("speed_violations + ?", c.SpeedViolations),
		"impossible_moves":       gorm.Expr("impossible_moves + ?", c.ImpossibleMoves),
		"time_inconsistencies":   gorm.Expr("time_inconsistencies + ?", c.TimeInconsistencies),
	}

	result := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Where("run_id = ? AND user_id = ? AND status = ?", runID, userID, models.RunStatusActive).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotActive
	}
	return nil
}

// MarkClaimed 标记奖励已领取，只能成功一次
func (r *gameRunRepo) MarkClaimed(ctx context.Context, runID, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Where("run_id = ? AND user_id = ?", runID, userID).
		Where("status = ? AND is_eligible_for_reward = ? AND reward_claimed = ?", models.RunStatusCompleted, true, false).
		Update("reward_claimed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyMarked
	}
	return nil
}

// AbandonStale 将 before 之前开始仍在进行的对局置为放弃
func (r *gameRunRepo) AbandonStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Where("status = ? AND start_time < ?", models.RunStatusActive, before).
		Updates(abandonUpdates())
	return result.RowsAffected, result.Error
}

// AbandonStaleForUser 只处理指定用户的过期对局
func (r *gameRunRepo) AbandonStaleForUser(ctx context.Context, userID string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Where("user_id = ? AND status = ? AND start_time < ?", userID, models.RunStatusActive, before).
		Updates(abandonUpdates())
	return result.RowsAffected, result.Error
}

func abandonUpdates() map[string]interface{} {
	return map[string]interface{}{
		"status":      models.RunStatusAbandoned,
		"active_lock": nil,
	}
}

// Leaderboard 按最佳分数排序的玩家排行，since 为空表示全部时间
func (r *gameRunRepo) Leaderboard(ctx context.Context, since *time.Time, p *Pagination) ([]*LeaderboardEntry, error) {
	completed := func() *gorm.DB {
		q := r.db.WithContext(ctx).
			Model(&models.GameRun{}).
			Where("status = ?", models.RunStatusCompleted)
		if since != nil {
			q = q.Where("start_time >= ?", *since)
		}
		return q
	}

	// 查询上榜玩家总数
	if err := completed().Distinct("user_id").Count(&p.Total).Error; err != nil {
		return nil, err
	}

	var entries []*LeaderboardEntry
	err := completed().
		Select("user_id, MAX(score) AS best_score, SUM(distance) AS total_distance, " +
			"COUNT(*) AS total_runs, SUM(reward_amount) AS total_rewards").
		Group("user_id").
		Order("best_score desc").
		Order("user_id asc").
		Scopes(Paginate(p)).
		Scan(&entries).Error
	return entries, err
}

// PlayerStats 汇总玩家已完成的对局
func (r *gameRunRepo) PlayerStats(ctx context.Context, userID string) (*PlayerStats, error) {
	var stats PlayerStats
	err := r.db.WithContext(ctx).
		Model(&models.GameRun{}).
		Select("COUNT(*) AS total_runs, COALESCE(MAX(score), 0) AS best_score, "+
			"COALESCE(SUM(distance), 0) AS total_distance, COALESCE(SUM(coins_collected), 0) AS total_coins, "+
			"COALESCE(AVG(score), 0) AS average_score, COALESCE(SUM(duration), 0) AS total_play_time").
		Where("user_id = ? AND status = ?", userID, models.RunStatusCompleted).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CountBetterPlayers 统计最佳分数高于 bestScore 的玩家数量
func (r *gameRunRepo) CountBetterPlayers(ctx context.Context, bestScore int64) (int64, error) {
	better := r.db.
		Model(&models.GameRun{}).
		Select("user_id").
		Where("status = ?", models.RunStatusCompleted).
		Group("user_id").
		Having("MAX(score) > ?", bestScore)

	var count int64
	err := r.db.WithContext(ctx).
		Table("(?) AS better", better).
		Count(&count).Error
	return count, err
}

// RecentRuns 最近结束的对局（包括无效对局）
func (r *gameRunRepo) RecentRuns(ctx context.Context, userID string, limit int) ([]*models.GameRun, error) {
	var runs []*models.GameRun
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{models.RunStatusCompleted, models.RunStatusInvalid}).
		Order("start_time desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
