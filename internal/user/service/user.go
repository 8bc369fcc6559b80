package service

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/validator"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"go.uber.org/zap"
)

// Auditor 审计日志记录
type Auditor interface {
	Log(ctx context.Context, userID *int64, action, target string, details any) error
}

// UserService 用户相关 HTTP 接口
type UserService struct {
	uc      *biz.UserUseCase
	jwt     *auth.JWTManager
	auditor Auditor
	logger  *logger.Logger
}

// NewUserService 创建用户服务
func NewUserService(uc *biz.UserUseCase, jwt *auth.JWTManager, auditor Auditor, log *logger.Logger) *UserService {
	return &UserService{
		uc:      uc,
		jwt:     jwt,
		auditor: auditor,
		logger:  log,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

type CreateUserRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	IsAdmin    bool   `json:"is_admin"`
	Department string `json:"department"`
}

type UserResponse struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	IsAdmin      bool   `json:"is_admin"`
	DepartmentID int64  `json:"department_id"`
	Department   string `json:"department"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type MemoryRequest struct {
	Memory string `json:"memory"`
}

type APITokenResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
}

// Login 用户名密码登录，签发 JWT
func (s *UserService) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := s.uc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Info("login failed",
			zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		response.HandleError(c, err)
		return
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(user.Principal())
	if err != nil {
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "sign token"))
		return
	}

	s.audit(c.Request.Context(), &user.ID, "auth.login", user.Username, map[string]any{"ip": validator.GetIPOrDefault(c.ClientIP(), "unknown")})
	response.Success(c, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        toResponse(user),
	})
}

// Setup 系统中没有任何用户时创建首个管理员
func (s *UserService) Setup(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	has, err := s.uc.HasAnyUsers(ctx)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if has {
		response.ErrorWithCode(c, apperrors.ErrForbidden, "setup already completed")
		return
	}

	user, err := s.uc.CreateUser(ctx, biz.CreateUserInput{
		Username:   req.Username,
		Password:   req.Password,
		IsAdmin:    true,
		Department: req.Department,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	s.audit(ctx, &user.ID, "user.bootstrap", user.Username, nil)
	response.Created(c, toResponse(user))
}

// CreateUser 管理员创建用户
func (s *UserService) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := s.uc.CreateUser(c.Request.Context(), biz.CreateUserInput{
		Username:   req.Username,
		Password:   req.Password,
		IsAdmin:    req.IsAdmin,
		Department: req.Department,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	p, _ := middleware.CurrentPrincipal(c)
	s.audit(c.Request.Context(), &p.UserID, "user.create", user.Username, map[string]any{
		"is_admin":   user.IsAdmin,
		"department": user.DepartmentName,
	})
	response.Created(c, toResponse(user))
}

// ListUsers 管理员查看全部用户
func (s *UserService) ListUsers(c *gin.Context) {
	users, err := s.uc.ListUsers(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}

	out := make([]*UserResponse, len(users))
	for i, u := range users {
		out[i] = toResponse(u)
	}
	response.Success(c, out)
}

// ListDepartments 管理员查看部门
func (s *UserService) ListDepartments(c *gin.Context) {
	depts, err := s.uc.ListDepartments(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}

	out := make([]gin.H, len(depts))
	for i, d := range depts {
		out[i] = gin.H{"id": d.ID, "name": d.Name, "created_at": d.CreatedAt.Format(time.RFC3339)}
	}
	response.Success(c, out)
}

// Me 当前用户
func (s *UserService) Me(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	user, err := s.uc.GetUser(c.Request.Context(), p.UserID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, toResponse(user))
}

// GetMemory 读取当前用户记忆
func (s *UserService) GetMemory(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	mem, err := s.uc.GetMemory(c.Request.Context(), p.UserID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, MemoryRequest{Memory: mem})
}

// SetMemory 更新当前用户记忆
func (s *UserService) SetMemory(c *gin.Context) {
	var req MemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, _ := middleware.CurrentPrincipal(c)
	if err := s.uc.SetMemory(c.Request.Context(), p.UserID, req.Memory); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, req)
}

// ListAPITokens 当前用户的 API token，不含明文
func (s *UserService) ListAPITokens(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	tokens, err := s.uc.ListAPITokens(c.Request.Context(), p.UserID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	out := make([]APITokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = APITokenResponse{
			ID:         t.ID,
			Name:       t.Name,
			Prefix:     t.Prefix,
			CreatedAt:  t.CreatedAt,
			LastUsedAt: t.LastUsedAt,
			RevokedAt:  t.RevokedAt,
		}
	}
	response.Success(c, out)
}

// RevokeAPIToken 吊销当前用户的 API token
func (s *UserService) RevokeAPIToken(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid token id")
		return
	}

	p, _ := middleware.CurrentPrincipal(c)
	if err := s.uc.RevokeAPIToken(c.Request.Context(), p.UserID, id); err != nil {
		response.HandleError(c, err)
		return
	}
	s.audit(c.Request.Context(), &p.UserID, "api_token.revoke", strconv.FormatInt(id, 10), nil)
	response.Success(c, nil)
}

func (s *UserService) audit(ctx context.Context, userID *int64, action, target string, details any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, userID, action, target, details); err != nil {
		s.logger.WithContext(ctx).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func toResponse(u *biz.User) *UserResponse {
	resp := &UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		IsAdmin:      u.IsAdmin,
		DepartmentID: u.DepartmentID,
		Department:   u.DepartmentName,
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// RegisterRoutes 注册路由。public 无需认证，authed 已挂载 JWT 认证
func (s *UserService) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/auth/login", s.Login)
	public.POST("/setup", s.Setup)

	authed.GET("/me", s.Me)
	authed.GET("/me/memory", s.GetMemory)
	authed.PUT("/me/memory", s.SetMemory)
	authed.GET("/me/api-tokens", s.ListAPITokens)
	authed.DELETE("/me/api-tokens/:id", s.RevokeAPIToken)

	admin := authed.Group("", middleware.RequireAdmin())
	admin.POST("/users", s.CreateUser)
	admin.GET("/users", s.ListUsers)
	admin.GET("/departments", s.ListDepartments)
}
