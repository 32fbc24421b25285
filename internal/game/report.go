package game

import (
	"time"
)

// 违规描述（对客户端可见）
const (
	ViolationInvalidDuration   = "Invalid duration"
	ViolationImpossibleSpeed   = "Impossible speed detected"
	ViolationScoreInconsistent = "Score inconsistent with gameplay"
	ViolationTimeInconsistency = "Time inconsistency with server"
)

// Thresholds 完整性校验阈值
type Thresholds struct {
	MinDuration         time.Duration
	MaxDuration         time.Duration
	MaxSpeed            float64 // 单位/秒
	ScoreTolerance      float64 // 分数上限倍率
	ServerTimeTolerance time.Duration
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDuration:         time.Second,
		MaxDuration:         10 * time.Minute,
		MaxSpeed:            50,
		ScoreTolerance:      1.2,
		ServerTimeTolerance: 5 * time.Second,
	}
}

// Report 客户端上报的对局结果
type Report struct {
	Duration       int64 // 毫秒
	Score          int64
	Distance       float64
	CoinsCollected int64
	PowerUpsUsed   int64
}

// Facts 服务端已知的对局事实
type Facts struct {
	StartTime time.Time
}

// Counters 可疑行为计数
type Counters struct {
	SpeedViolations     int `json:"speed_violations"`
	ImpossibleMoves     int `json:"impossible_moves"`
	TimeInconsistencies int `json:"time_inconsistencies"`
}

// Total 计数总和
func (c Counters) Total() int {
	return c.SpeedViolations + c.ImpossibleMoves + c.TimeInconsistencies
}

// Add 累加另一组计数
func (c Counters) Add(other Counters) Counters {
	return Counters{
		SpeedViolations:     c.SpeedViolations + other.SpeedViolations,
		ImpossibleMoves:     c.ImpossibleMoves + other.ImpossibleMoves,
		TimeInconsistencies: c.TimeInconsistencies + other.TimeInconsistencies,
	}
}

// Verdict 校验结论
type Verdict struct {
	Valid      bool
	Violations []string
	// Delta 本次校验新增的计数
	Delta Counters
}
