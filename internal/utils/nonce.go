package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ServerNonceBytes 服务端随机数字节数（256位熵）
const ServerNonceBytes = 32

// MaxClientFieldLength 客户端字符串字段的最大长度（按字符计）
const MaxClientFieldLength = 256

// NewRunID 生成全局唯一的对局ID
func NewRunID() string {
	return uuid.NewString()
}

// NewServerNonce 生成十六进制编码的服务端随机数
func NewServerNonce() (string, error) {
	buf := make([]byte, ServerNonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NonceEqual 常量时间比较两个随机数
func NonceEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SanitizeInput 清理客户端传入的不透明字符串：去除首尾空白、控制字符和尖括号，并截断长度
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) || r == '<' || r == '>' {
			continue
		}
		if n >= MaxClientFieldLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
