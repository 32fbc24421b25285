package game

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// finishedAfter 构造服务端耗时与上报时长一致的对局事实
func finishedAfter(durationMs int64) (Facts, time.Time) {
	return Facts{StartTime: baseTime}, baseTime.Add(time.Duration(durationMs) * time.Millisecond)
}

func TestValidateCompletion_PlausibleRun(t *testing.T) {
	facts, now := finishedAfter(5000)
	v := ValidateCompletion(Report{Duration: 5000, Score: 50, Distance: 10}, facts, now, DefaultThresholds())

	assert.True(t, v.Valid)
	assert.Empty(t, v.Violations)
	assert.Equal(t, 0, v.Delta.Total())
}

func TestValidateCompletion_PlausibleGrid(t *testing.T) {
	th := DefaultThresholds()
	for _, duration := range []int64{1000, 5000, 60000, 600000} {
		maxDistance := duration * 50 / 1000
		for _, distance := range []int64{0, maxDistance / 2, maxDistance} {
			for _, coins := range []int64{0, 3, 40} {
				ceiling := distance*10 + coins*50
				for _, score := range []int64{0, ceiling, ceiling * 12 / 10} {
					facts, now := finishedAfter(duration)
					r := Report{Duration: duration, Score: score, Distance: float64(distance), CoinsCollected: coins}
					v := ValidateCompletion(r, facts, now, th)
					assert.True(t, v.Valid, "report %+v", r)
					assert.Empty(t, v.Violations, "report %+v", r)
				}
			}
		}
	}
}

func TestValidateCompletion_DurationOutOfRange(t *testing.T) {
	th := DefaultThresholds()
	for _, duration := range []int64{1, 999, 600001, 900000} {
		facts, now := finishedAfter(duration)
		v := ValidateCompletion(Report{Duration: duration}, facts, now, th)

		assert.False(t, v.Valid, "duration %d", duration)
		assert.Contains(t, v.Violations, ViolationInvalidDuration)
		assert.Equal(t, 1, v.Delta.TimeInconsistencies, "duration %d", duration)
	}
}

func TestValidateCompletion_ImpossibleSpeed(t *testing.T) {
	facts, now := finishedAfter(5000)
	v := ValidateCompletion(Report{Duration: 5000, Score: 5000, Distance: 600}, facts, now, DefaultThresholds())

	assert.False(t, v.Valid)
	assert.Contains(t, v.Violations, ViolationImpossibleSpeed)
	assert.Equal(t, 1, v.Delta.SpeedViolations)
}

func TestValidateCompletion_ScoreInconsistent(t *testing.T) {
	facts, now := finishedAfter(10000)
	// 上限 = 10*10 + 2*50 = 200，容差后 240
	v := ValidateCompletion(Report{Duration: 10000, Score: 241, Distance: 10, CoinsCollected: 2}, facts, now, DefaultThresholds())

	assert.False(t, v.Valid)
	assert.Equal(t, []string{ViolationScoreInconsistent}, v.Violations)
	assert.Equal(t, 1, v.Delta.ImpossibleMoves)

	v = ValidateCompletion(Report{Duration: 10000, Score: 240, Distance: 10, CoinsCollected: 2}, facts, now, DefaultThresholds())
	assert.True(t, v.Valid)
}

func TestScoreCeiling_FractionalDistance(t *testing.T) {
	// 150.55*10 + 1*50 = 1555.5，向下取整
	assert.Equal(t, float64(1555), ScoreCeiling(Report{Distance: 150.55, CoinsCollected: 1}))

	facts, now := finishedAfter(10000)
	// 上限 floor(10.5*10) = 105，容差后 126
	v := ValidateCompletion(Report{Duration: 10000, Score: 126, Distance: 10.5}, facts, now, DefaultThresholds())
	assert.True(t, v.Valid, v.Violations)

	v = ValidateCompletion(Report{Duration: 10000, Score: 127, Distance: 10.5}, facts, now, DefaultThresholds())
	assert.Equal(t, []string{ViolationScoreInconsistent}, v.Violations)
}

func TestScoreCeiling_HugeInputsStayPositive(t *testing.T) {
	r := Report{Distance: 1 << 62, CoinsCollected: math.MaxInt64}
	assert.Greater(t, ScoreCeiling(r), float64(0))

	facts, now := finishedAfter(10000)
	v := ValidateCompletion(Report{Duration: 10000, Score: 10, CoinsCollected: math.MaxInt64}, facts, now, DefaultThresholds())
	assert.NotContains(t, v.Violations, ViolationScoreInconsistent)
	assert.Zero(t, v.Delta.ImpossibleMoves)
}

func TestValidateCompletion_ServerTimeMismatch(t *testing.T) {
	th := DefaultThresholds()
	facts := Facts{StartTime: baseTime}

	// 服务端耗时 20s，上报 10s
	v := ValidateCompletion(Report{Duration: 10000, Distance: 10}, facts, baseTime.Add(20*time.Second), th)
	assert.False(t, v.Valid)
	assert.Equal(t, []string{ViolationTimeInconsistency}, v.Violations)
	assert.Equal(t, 1, v.Delta.TimeInconsistencies)

	// 恰好 5s 偏差仍然有效
	v = ValidateCompletion(Report{Duration: 10000, Distance: 10}, facts, baseTime.Add(15*time.Second), th)
	assert.True(t, v.Valid)
}

func TestValidateCompletion_CollectsAllViolations(t *testing.T) {
	facts := Facts{StartTime: baseTime}
	r := Report{Duration: 500, Score: 1_000_000, Distance: 400}
	v := ValidateCompletion(r, facts, baseTime.Add(time.Minute), DefaultThresholds())

	require.False(t, v.Valid)
	assert.Equal(t, []string{
		ViolationInvalidDuration,
		ViolationImpossibleSpeed,
		ViolationScoreInconsistent,
		ViolationTimeInconsistency,
	}, v.Violations)
	assert.Equal(t, Counters{SpeedViolations: 1, ImpossibleMoves: 1, TimeInconsistencies: 2}, v.Delta)
}

func TestValidateCompletion_CustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.MaxSpeed = 10

	facts, now := finishedAfter(5000)
	v := ValidateCompletion(Report{Duration: 5000, Distance: 60}, facts, now, th)
	assert.Contains(t, v.Violations, ViolationImpossibleSpeed)
}

func TestIsEligible(t *testing.T) {
	valid := Verdict{Valid: true}
	invalid := Verdict{Valid: false, Violations: []string{ViolationImpossibleSpeed}}

	assert.True(t, IsEligible(valid, 100, 100))
	assert.False(t, IsEligible(valid, 99, 100))
	assert.False(t, IsEligible(invalid, 5000, 100))
}

func TestCountersAdd(t *testing.T) {
	c := Counters{SpeedViolations: 1}.Add(Counters{SpeedViolations: 2, TimeInconsistencies: 1})
	assert.Equal(t, Counters{SpeedViolations: 3, TimeInconsistencies: 1}, c)
	assert.Equal(t, 4, c.Total())
}
