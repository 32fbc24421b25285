package game

// MaxReward 单局奖励上限
const MaxReward int64 = 100

type tier struct {
	threshold int64
	bonus     int64
}

// 阈值独立叠加，不是互斥档位
var (
	scoreTiers = []tier{
		{threshold: 1000, bonus: 10},
		{threshold: 5000, bonus: 25},
		{threshold: 10000, bonus: 50},
	}
	distanceTiers = []tier{
		{threshold: 100, bonus: 5},
		{threshold: 500, bonus: 15},
		{threshold: 1000, bonus: 30},
	}
)

// Snapshot 计算奖励所需的对局快照
type Snapshot struct {
	Score    int64
	Distance float64
	Counters Counters
}

// CalculateReward 计算代币奖励，结果确定且位于 [0, MaxReward]
func CalculateReward(s Snapshot) int64 {
	var reward int64

	for _, t := range scoreTiers {
		if s.Score >= t.threshold {
			reward += t.bonus
		}
	}
	for _, t := range distanceTiers {
		if s.Distance >= float64(t.threshold) {
			reward += t.bonus
		}
	}

	// 无可疑行为时 ×1.2 向下取整，整数运算避免浮点误差
	if s.Counters.Total() == 0 {
		reward = reward * 12 / 10
	}

	if reward > MaxReward {
		reward = MaxReward
	}
	return reward
}
