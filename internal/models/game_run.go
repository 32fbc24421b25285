package models

import (
	"time"
)

// 对局状态
const (
	RunStatusActive    = "active"
	RunStatusCompleted = "completed"
	RunStatusInvalid   = "invalid"
	RunStatusAbandoned = "abandoned"
)

// DefaultGameType 默认游戏类型
const DefaultGameType = "runner"

// MaxClientNonceLength 客户端随机数上限，与 client_nonce 列宽一致
const MaxClientNonceLength = 128

// GameRun 对局记录表
type GameRun struct {
	BaseModel
	RunID       string  `gorm:"uniqueIndex;size:64;not null" json:"run_id"`
	UserID      string  `gorm:"size:64;not null;index:idx_run_user_status,priority:1" json:"user_id"`
	GameType    string  `gorm:"size:32;default:'runner'" json:"game_type"`
	Status      string  `gorm:"size:20;not null;default:'active';index:idx_run_user_status,priority:2" json:"status"`
	ServerNonce string  `gorm:"size:128;not null" json:"-"`
	ClientNonce string  `gorm:"size:128" json:"-"` // 原样存储，长度上限见 MaxClientNonceLength
	ClientData  JSONMap `gorm:"type:json" json:"client_data,omitempty"`

	// ActiveLock 对局进行中时等于UserID，结束后置空；唯一索引保证每个用户至多一个进行中对局
	ActiveLock *string `gorm:"size:64;uniqueIndex:idx_run_active_lock" json:"-"`

	StartTime time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// 客户端上报，仅在结束时写入一次
	Duration       int64   `gorm:"default:0" json:"duration"` // 毫秒
	Score          int64   `gorm:"default:0;index" json:"score"`
	Distance       float64 `gorm:"default:0" json:"distance"`
	CoinsCollected int64   `gorm:"default:0" json:"coins_collected"`
	PowerUpsUsed   int64   `gorm:"default:0" json:"power_ups_used"`

	// 服务端派生字段
	IsEligibleForReward bool  `gorm:"default:false" json:"is_eligible_for_reward"`
	RewardAmount        int64 `gorm:"default:0" json:"reward_amount"`
	RewardClaimed       bool  `gorm:"default:false" json:"reward_claimed"`

	// 可疑行为计数，只增不减
	SpeedViolations     int `gorm:"default:0" json:"speed_violations"`
	ImpossibleMoves     int `gorm:"default:0" json:"impossible_moves"`
	TimeInconsistencies int `gorm:"default:0" json:"time_inconsistencies"`
}

// TableName 指定表名
func (GameRun) TableName() string {
	return "game_runs"
}

// IsActive 是否进行中
func (r *GameRun) IsActive() bool {
	return r.Status == RunStatusActive
}

// SuspiciousTotal 可疑行为计数总和
func (r *GameRun) SuspiciousTotal() int {
	return r.SpeedViolations + r.ImpossibleMoves + r.TimeInconsistencies
}
