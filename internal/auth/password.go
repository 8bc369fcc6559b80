package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 密码最小长度
const MinPasswordLength = 8

// APITokenPrefixLen 存储用于展示的 token 前缀长度
const APITokenPrefixLen = 8

var ErrWeakPassword = errors.New("auth: password must be at least 8 characters")

// HashPassword bcrypt 哈希
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword 校验密码
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateAPIToken 生成 url-safe 随机 token（32 字节）
func GenerateAPIToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIToken token 的 sha256，库中只保存哈希
func HashAPIToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// APITokenPrefix token 前缀
func APITokenPrefix(token string) string {
	if len(token) <= APITokenPrefixLen {
		return token
	}
	return token[:APITokenPrefixLen]
}
