package service

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/admin/biz"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"go.uber.org/zap"
)

// AdminService 审计与设置接口，仅管理员可用
type AdminService struct {
	audit    *biz.AuditUseCase
	settings *biz.SettingsUseCase
	logger   *logger.Logger
}

// NewAdminService 创建管理服务
func NewAdminService(audit *biz.AuditUseCase, settings *biz.SettingsUseCase, log *logger.Logger) *AdminService {
	return &AdminService{audit: audit, settings: settings, logger: log}
}

type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

// ListAudit 最近的审计事件
func (s *AdminService) ListAudit(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(biz.DefaultAuditLimit)))
	if err != nil {
		response.BadRequest(c, "limit must be an integer")
		return
	}

	events, err := s.audit.List(c.Request.Context(), limit)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, events)
}

// ListSettings 当前设置
func (s *AdminService) ListSettings(c *gin.Context) {
	settings, err := s.settings.List(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateSetting 修改设置并记录审计
func (s *AdminService) UpdateSetting(c *gin.Context) {
	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	key := c.Param("key")

	setting, err := s.settings.Set(ctx, p.UserID, key, req.Value)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if err := s.audit.Log(ctx, &p.UserID, "settings.update", key, map[string]any{"value": setting.Value}); err != nil {
		s.logger.WithContext(ctx).Warn("audit log failed", zap.Error(err))
	}
	response.Success(c, setting)
}

// RegisterRoutes 注册路由，group 需已挂载认证
func (s *AdminService) RegisterRoutes(group *gin.RouterGroup) {
	admin := group.Group("/admin", middleware.RequireAdmin())
	admin.GET("/audit", s.ListAudit)
	admin.GET("/settings", s.ListSettings)
	admin.PUT("/settings/:key", s.UpdateSetting)
}
