package utils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerNonce(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		nonce, err := NewServerNonce()
		require.NoError(t, err)

		raw, err := hex.DecodeString(nonce)
		require.NoError(t, err)
		assert.Len(t, raw, ServerNonceBytes)

		assert.False(t, seen[nonce], "随机数重复")
		seen[nonce] = true
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestNonceEqual(t *testing.T) {
	assert.True(t, NonceEqual("abc", "abc"))
	assert.False(t, NonceEqual("abc", "abd"))
	assert.False(t, NonceEqual("abc", "abcd"))
	assert.False(t, NonceEqual("abc", ""))
}

func TestSanitizeInput(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"  Mozilla/5.0  ", "Mozilla/5.0"},
		{"1920x1080", "1920x1080"},
		{"<script>alert(1)</script>", "scriptalert(1)/script"},
		{"Asia/\x00Shanghai\n", "Asia/Shanghai"},
		{"时区\t上海", "时区上海"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, SanitizeInput(tc.input), "input %q", tc.input)
	}

	long := strings.Repeat("界", MaxClientFieldLength+10)
	assert.Equal(t, MaxClientFieldLength, len([]rune(SanitizeInput(long))))
}

func TestRewardDigest(t *testing.T) {
	snapshot := RewardSnapshot{RunID: "run-1", UserID: "user-1", Amount: 18, Score: 1200, Distance: 150, Duration: 5000}

	digest := RewardDigest(snapshot)
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, RewardDigest(snapshot))
	assert.True(t, VerifyRewardDigest(snapshot, digest))

	tampered := snapshot
	tampered.Amount = 100
	assert.NotEqual(t, digest, RewardDigest(tampered))
	assert.False(t, VerifyRewardDigest(tampered, digest))
}
