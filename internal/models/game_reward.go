package models

import (
	"time"
)

// 奖励状态
const (
	RewardStatusPending   = "pending"
	RewardStatusCompleted = "completed"
	RewardStatusFailed    = "failed"
)

// 奖励类型
const (
	RewardTypeTokens = "tokens"
	RewardTypeNFT    = "nft"
	RewardTypeBadge  = "badge"
)

// GameReward 奖励发放记录表，每个对局至多一条
type GameReward struct {
	BaseModel
	RewardID        string     `gorm:"uniqueIndex;size:64;not null" json:"reward_id"`
	RunID           string     `gorm:"uniqueIndex:idx_reward_run;size:64;not null" json:"run_id"`
	UserID          string     `gorm:"size:64;not null;index" json:"user_id"`
	GameType        string     `gorm:"size:32;default:'runner'" json:"game_type"`
	RewardType      string     `gorm:"size:20;default:'tokens'" json:"reward_type"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Status          string     `gorm:"size:20;default:'pending';index" json:"status"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	TransactionHash string     `gorm:"size:128" json:"transaction_hash,omitempty"`

	// 发放时的对局快照
	Score    int64   `json:"score"`
	Distance float64 `json:"distance"`
	Duration int64   `json:"duration"`

	// AuditDigest 快照的 blake2b-256 摘要（十六进制）
	AuditDigest string `gorm:"size:64" json:"audit_digest"`
}

// TableName 指定表名
func (GameReward) TableName() string {
	return "game_rewards"
}
