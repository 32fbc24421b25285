package game

import (
	"math"
	"time"
)

// ValidateCompletion 校验上报结果的物理与时间合理性。
// 所有规则都会执行，违规不短路，每条违规各自累加对应计数。
func ValidateCompletion(report Report, facts Facts, now time.Time, th Thresholds) Verdict {
	verdict := Verdict{Violations: []string{}}

	minMs := th.MinDuration.Milliseconds()
	maxMs := th.MaxDuration.Milliseconds()
	if report.Duration < minMs || report.Duration > maxMs {
		verdict.Violations = append(verdict.Violations, ViolationInvalidDuration)
		verdict.Delta.TimeInconsistencies++
	}

	if report.Duration > 0 {
		speed := report.Distance / (float64(report.Duration) / 1000)
		if speed > th.MaxSpeed {
			verdict.Violations = append(verdict.Violations, ViolationImpossibleSpeed)
			verdict.Delta.SpeedViolations++
		}
	}

	if float64(report.Score) > th.ScoreTolerance*ScoreCeiling(report) {
		verdict.Violations = append(verdict.Violations, ViolationScoreInconsistent)
		verdict.Delta.ImpossibleMoves++
	}

	elapsed := now.Sub(facts.StartTime).Milliseconds()
	if abs64(elapsed-report.Duration) > th.ServerTimeTolerance.Milliseconds() {
		verdict.Violations = append(verdict.Violations, ViolationTimeInconsistency)
		verdict.Delta.TimeInconsistencies++
	}

	verdict.Valid = len(verdict.Violations) == 0
	return verdict
}

// ScoreCeiling 根据距离和金币估算的分数上限，向下取整。
// 浮点运算，超大输入不会回绕成负数
func ScoreCeiling(report Report) float64 {
	return math.Floor(report.Distance*10 + float64(report.CoinsCollected)*50)
}

// IsEligible 有效且达到最低分数的对局才可领奖
func IsEligible(v Verdict, score, minScore int64) bool {
	return v.Valid && score >= minScore
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
