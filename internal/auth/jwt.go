package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultAccessTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrTokenExpired  = errors.New("auth: token expired")
	ErrMissingBearer = errors.New("auth: invalid authorization header format")
)

// JWTClaims JWT 声明
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Principal 从声明还原的当前用户
func (c *JWTClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Username: c.Username, IsAdmin: c.IsAdmin}
}

// JWTManager JWT 管理器
type JWTManager struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTManager 创建 JWT 管理器，ttl <= 0 时使用默认值
func NewJWTManager(secretKey, issuer string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &JWTManager{secretKey: []byte(secretKey), issuer: issuer, ttl: ttl, now: time.Now}
}

// GenerateAccessToken 生成 Access Token，同时返回过期时间
func (m *JWTManager) GenerateAccessToken(p Principal) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &JWTClaims{
		UserID:   p.UserID,
		Username: p.Username,
		IsAdmin:  p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   fmt.Sprint(p.UserID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken 验证 Access Token
func (m *JWTManager) VerifyAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractTokenFromHeader 从 Authorization header 提取 token
// 格式：Authorization: Bearer <token>
func ExtractTokenFromHeader(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}
