package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"go.uber.org/zap"
)

// APIKeyHeader 外部 API 使用的 token 头
const APIKeyHeader = "x-api-key"

const principalKey = "principal"

// APITokenAuthenticator 校验 API token 并返回所属用户
type APITokenAuthenticator interface {
	AuthenticateAPIToken(ctx context.Context, token string) (auth.Principal, error)
}

// JWTAuth JWT 认证中间件。SSE 请求可通过 token 查询参数携带
func JWTAuth(m *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if header := c.GetHeader("Authorization"); header != "" {
			var err error
			token, err = auth.ExtractTokenFromHeader(header)
			if err != nil {
				response.AbortWithCode(c, apperrors.ErrAuthInvalidToken, err.Error())
				return
			}
		} else {
			token = c.Query("token")
		}
		if token == "" {
			response.AbortWithCode(c, apperrors.ErrAuthMissingCredentials)
			return
		}

		claims, err := m.VerifyAccessToken(token)
		if err != nil {
			log.Warn("invalid access token", zap.Error(err), zap.String("ip", c.ClientIP()))
			code := apperrors.ErrAuthInvalidToken
			if errors.Is(err, auth.ErrTokenExpired) {
				code = apperrors.ErrAuthTokenExpired
			}
			response.AbortWithCode(c, code)
			return
		}

		setPrincipal(c, claims.Principal())
		c.Next()
	}
}

// APIKeyAuth API token 认证中间件，读取 x-api-key，缺省时回退到 Bearer
func APIKeyAuth(a APITokenAuthenticator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(APIKeyHeader))
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		}
		if token == "" {
			response.AbortWithCode(c, apperrors.ErrAuthMissingCredentials)
			return
		}

		p, err := a.AuthenticateAPIToken(c.Request.Context(), token)
		if err != nil {
			log.Warn("invalid api token",
				zap.String("prefix", auth.APITokenPrefix(token)),
				zap.String("ip", c.ClientIP()),
				zap.Error(err))
			response.AbortWithCode(c, apperrors.ErrAuthInvalidToken)
			return
		}

		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAdmin 仅管理员（需要先经过认证中间件）
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			response.AbortWithCode(c, apperrors.ErrUnauthorized)
			return
		}
		if !p.IsAdmin {
			response.AbortWithCode(c, apperrors.ErrForbidden, "admin only")
			return
		}
		c.Next()
	}
}

// CurrentPrincipal 当前调用方
func CurrentPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// setPrincipal 同时写入 gin 上下文与 request context
func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
	c.Set("user_id", p.UserID)
	ctx := auth.WithPrincipal(c.Request.Context(), p)
	ctx = logger.WithUserID(ctx, strconv.FormatInt(p.UserID, 10))
	c.Request = c.Request.WithContext(ctx)
}
