package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	adminservice "github.com/lk2023060901/chatbot-rag/internal/admin/service"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/conf"
	convservice "github.com/lk2023060901/chatbot-rag/internal/conversation/service"
	kbservice "github.com/lk2023060901/chatbot-rag/internal/knowledge/service"
	"github.com/lk2023060901/chatbot-rag/internal/lgapi"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	userservice "github.com/lk2023060901/chatbot-rag/internal/user/service"
	"go.uber.org/zap"
)

// Services 挂载到 HTTP 服务的各模块接口
type Services struct {
	User         *userservice.UserService
	Conversation *convservice.ConversationService
	Knowledge    *kbservice.KnowledgeService
	Admin        *adminservice.AdminService
	LangGraph    *lgapi.Handler
	// Health 为 nil 时 /health 只报告进程存活
	Health interface {
		HealthCheck(ctx context.Context) error
	}
}

type HTTPServer struct {
	server  *http.Server
	timeout time.Duration
	logger  *logger.Logger
}

// NewHTTPServer 组装路由。rc 为 nil 时不启用限流
//
//	/health, /metrics
//	/info, /auth/login, /threads/...      外部 API（x-api-key）
//	/api/v1/...                           Web API（Bearer JWT）
func NewHTTPServer(
	cfg *conf.Config,
	log *logger.Logger,
	jwt *auth.JWTManager,
	rc *redis.Client,
	m *metrics.Metrics,
	svcs Services,
) *HTTPServer {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, "/health", "/metrics"))
	router.Use(m.GinMiddleware())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		if svcs.Health != nil {
			if err := svcs.Health.HealthCheck(c.Request.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", m.Handler())

	svcs.LangGraph.RegisterRoutes(router)

	api := router.Group("/api/v1")
	authed := api.Group("", middleware.JWTAuth(jwt, log))
	if rc != nil && cfg.RateLimit.Enabled {
		authed.Use(middleware.RateLimiter(rc, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimit.Requests,
			Window:      cfg.RateLimit.Window,
		}, log))
	}

	svcs.User.RegisterRoutes(api, authed)
	svcs.Conversation.RegisterRoutes(authed)
	svcs.Knowledge.RegisterRoutes(authed)
	svcs.Admin.RegisterRoutes(authed)

	return &HTTPServer{
		server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		timeout: cfg.Server.ShutdownTimeout,
		logger:  log,
	}
}

// Handler 路由，供测试直接调用
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop 优雅关闭，最长等待 shutdown_timeout
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}
