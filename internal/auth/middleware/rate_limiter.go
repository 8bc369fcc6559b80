package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"go.uber.org/zap"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	MaxRequests int64         // 窗口内允许的最大请求数
	Window      time.Duration // 固定窗口长度
}

// RateLimiter 基于 Redis 固定窗口计数的限流，已认证请求按用户，其余按 IP
func RateLimiter(rc *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := buildRateLimitKey(c)
		n, err := rc.IncrWithExpire(c.Request.Context(), key, cfg.Window)
		if err != nil {
			// 限流器故障时放行
			log.Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		remaining := max(cfg.MaxRequests-n, 0)
		c.Header("X-RateLimit-Limit", fmt.Sprint(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprint(remaining))

		if n > cfg.MaxRequests {
			c.Header("Retry-After", fmt.Sprint(int(cfg.Window.Seconds())))
			response.AbortWithCode(c, apperrors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func buildRateLimitKey(c *gin.Context) string {
	if p, ok := CurrentPrincipal(c); ok {
		return fmt.Sprintf("rate_limit:user:%d", p.UserID)
	}
	return "rate_limit:ip:" + c.ClientIP()
}
