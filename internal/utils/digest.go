package utils

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// RewardSnapshot 奖励发放时参与摘要的字段
type RewardSnapshot struct {
	RunID    string
	UserID   string
	Amount   int64
	Score    int64
	Distance float64
	Duration int64
}

// canonical 固定字段顺序的规范化表示
func (s RewardSnapshot) canonical() string {
	return fmt.Sprintf("run=%s|user=%s|amount=%d|score=%d|distance=%s|duration=%d",
		s.RunID, s.UserID, s.Amount, s.Score, strconv.FormatFloat(s.Distance, 'f', -1, 64), s.Duration)
}

// RewardDigest 计算奖励快照的 blake2b-256 摘要，用于审计时核对台账记录未被篡改
func RewardDigest(s RewardSnapshot) string {
	sum := blake2b.Sum256([]byte(s.canonical()))
	return hex.EncodeToString(sum[:])
}

// VerifyRewardDigest 校验摘要是否与快照一致
func VerifyRewardDigest(s RewardSnapshot, digest string) bool {
	return NonceEqual(RewardDigest(s), digest)
}
