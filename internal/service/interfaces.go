package service

import (
	"context"
	"time"

	"github.com/wfunc/runner-game/internal/models"
	"github.com/wfunc/runner-game/internal/repository"
)

// GameService 对局生命周期与奖励服务接口
type GameService interface {
	// 对局生命周期
	StartRun(ctx context.Context, cmd *StartRunCommand) (*StartRunResult, error)
	FinishRun(ctx context.Context, cmd *FinishRunCommand) (*FinishRunResult, error)
	ClaimReward(ctx context.Context, cmd *ClaimRewardCommand) (*ClaimRewardResult, error)

	// 只读报表
	Leaderboard(ctx context.Context, q *LeaderboardQuery) (*LeaderboardResult, error)
	PlayerStats(ctx context.Context, userID string) (*PlayerStatsResult, error)

	// 回收过期的进行中对局
	ReapStaleRuns(ctx context.Context) (int64, error)
}

// RewardNotifier 奖励发放通知（消息队列等）
type RewardNotifier interface {
	NotifyRewardIssued(ctx context.Context, reward *models.GameReward) error
}

// ClientData 客户端环境信息，只做清理和存储，不参与任何判断
type ClientData struct {
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
}

// StartRunCommand 开局请求
type StartRunCommand struct {
	UserID      string      `json:"-"`
	GameType    string      `json:"gameType"`
	ClientNonce string      `json:"clientNonce"`
	ClientData  *ClientData `json:"clientData"`
}

// StartRunResult 开局结果
type StartRunResult struct {
	RunID       string    `json:"runId"`
	ServerNonce string    `json:"serverNonce"`
	StartTime   time.Time `json:"startTime"`
}

// FinishRunCommand 结束对局请求，指针字段用于区分缺失和零值
type FinishRunCommand struct {
	UserID         string   `json:"-"`
	RunID          string   `json:"runId"`
	Duration       *float64 `json:"duration"`
	Score          *float64 `json:"score"`
	Distance       *float64 `json:"distance"`
	CoinsCollected *float64 `json:"coinsCollected"`
	PowerUpsUsed   *float64 `json:"powerUpsUsed"`
	ClientNonce    string   `json:"clientNonce"`
}

// FinishRunResult 结束对局结果
type FinishRunResult struct {
	RunID               string   `json:"runId"`
	Status              string   `json:"status"`
	Score               int64    `json:"score"`
	Distance            float64  `json:"distance"`
	Duration            int64    `json:"duration"`
	IsEligibleForReward bool     `json:"isEligibleForReward"`
	RewardAmount        int64    `json:"rewardAmount"`
	Violations          []string `json:"violations,omitempty"`
}

// ClaimRewardCommand 领奖请求
type ClaimRewardCommand struct {
	UserID string `json:"-"`
	RunID  string `json:"runId"`
}

// ClaimRewardResult 领奖结果
type ClaimRewardResult struct {
	RewardID   string    `json:"rewardId"`
	Amount     int64     `json:"amount"`
	RewardType string    `json:"rewardType"`
	Status     string    `json:"status"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

// 排行榜时间范围
const (
	TimeframeAll     = "all"
	TimeframeDaily   = "daily"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
)

// LeaderboardQuery 排行榜查询
type LeaderboardQuery struct {
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	Timeframe string `form:"timeframe"`
	ClientIP  string `form:"-"`
}

// LeaderboardResult 排行榜结果
type LeaderboardResult struct {
	Leaderboard []*repository.LeaderboardEntry `json:"leaderboard"`
	Page        int                            `json:"page"`
	Limit       int                            `json:"limit"`
	Total       int64                          `json:"total"`
	Timeframe   string                         `json:"timeframe"`
}

// RunSummary 最近对局摘要
type RunSummary struct {
	RunID               string    `json:"runId"`
	Status              string    `json:"status"`
	Score               int64     `json:"score"`
	Distance            float64   `json:"distance"`
	Duration            int64     `json:"duration"`
	IsEligibleForReward bool      `json:"isEligibleForReward"`
	RewardAmount        int64     `json:"rewardAmount"`
	StartTime           time.Time `json:"startTime"`
}

// PlayerStatsResult 玩家统计
type PlayerStatsResult struct {
	TotalRuns     int64         `json:"totalRuns"`
	BestScore     int64         `json:"bestScore"`
	TotalDistance float64       `json:"totalDistance"`
	TotalCoins    int64         `json:"totalCoins"`
	AverageScore  int64         `json:"averageScore"`
	TotalPlayTime int64         `json:"totalPlayTime"`
	TotalRewards  int64         `json:"totalRewards"`
	TotalClaims   int64         `json:"totalClaims"`
	CurrentRank   int64         `json:"currentRank"`
	RecentRuns    []*RunSummary `json:"recentRuns"`
}
