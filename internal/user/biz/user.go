package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/auth"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultDepartment 未指定部门时使用的部门名
const DefaultDepartment = "default"

// ErrNotFound 仓储层记录不存在
var ErrNotFound = errors.New("user: record not found")

// ErrDuplicate 仓储层唯一约束冲突
var ErrDuplicate = errors.New("user: duplicate record")

// Department 部门
type Department struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// User 用户领域模型
type User struct {
	ID             int64
	Username       string
	PasswordHash   string
	IsAdmin        bool
	DepartmentID   int64
	DepartmentName string
	CreatedAt      time.Time
}

// Principal 转换为认证主体
func (u *User) Principal() auth.Principal {
	return auth.Principal{
		UserID:       u.ID,
		Username:     u.Username,
		IsAdmin:      u.IsAdmin,
		DepartmentID: u.DepartmentID,
		Department:   u.DepartmentName,
	}
}

// APIToken 外部 API 使用的 token，仅保存哈希
type APIToken struct {
	ID         int64
	UserID     int64
	TokenHash  []byte
	Prefix     string
	Name       string
	CreatedAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// UserRepo 用户数据访问接口
type UserRepo interface {
	HasAny(ctx context.Context) (bool, error)
	// Create 在同一事务中获取或创建部门、写入用户并初始化空的记忆
	Create(ctx context.Context, user *User, department string) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	ListDepartments(ctx context.Context) ([]*Department, error)

	GetMemory(ctx context.Context, userID int64) (string, error)
	SetMemory(ctx context.Context, userID int64, memory string, at time.Time) error

	CreateAPIToken(ctx context.Context, token *APIToken) error
	// FindActiveAPIToken 按哈希查找未吊销的 token 及其用户
	FindActiveAPIToken(ctx context.Context, hash []byte) (*APIToken, *User, error)
	ListAPITokens(ctx context.Context, userID int64) ([]*APIToken, error)
	TouchAPIToken(ctx context.Context, id int64, at time.Time) error
	RevokeAPIToken(ctx context.Context, userID, id int64, at time.Time) error
}

// CreateUserInput 创建用户参数
type CreateUserInput struct {
	Username   string
	Password   string
	IsAdmin    bool
	Department string
}

// UserUseCase 用户业务逻辑
type UserUseCase struct {
	repo   UserRepo
	logger *logger.Logger
	now    func() time.Time
}

// NewUserUseCase 创建用户用例
func NewUserUseCase(repo UserRepo, log *logger.Logger) *UserUseCase {
	if log == nil {
		log = logger.L()
	}
	return &UserUseCase{
		repo:   repo,
		logger: log.Named("user"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HasAnyUsers 是否已存在用户（用于首个管理员的引导创建）
func (uc *UserUseCase) HasAnyUsers(ctx context.Context) (bool, error) {
	ok, err := uc.repo.HasAny(ctx)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrInternalServer, "check users")
	}
	return ok, nil
}

// CreateUser 创建用户
func (uc *UserUseCase) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, apperrors.New(apperrors.ErrUserInvalidInput, "username is required")
	}

	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return nil, apperrors.New(apperrors.ErrAuthWeakPassword)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	dept := strings.TrimSpace(in.Department)
	if dept == "" {
		dept = DefaultDepartment
	}

	user := &User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    uc.now(),
	}
	if err := uc.repo.Create(ctx, user, dept); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperrors.New(apperrors.ErrUserExists, "username already exists")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "create user")
	}

	uc.logger.WithContext(ctx).Info("user created",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Bool("is_admin", user.IsAdmin),
		zap.String("department", user.DepartmentName))
	return user, nil
}

// Authenticate 用户名密码登录，失败统一返回 ErrAuthInvalidCredentials
func (uc *UserUseCase) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrAuthInvalidCredentials)
	}

	user, err := uc.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrAuthInvalidCredentials)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "load user")
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, apperrors.New(apperrors.ErrAuthInvalidCredentials)
	}
	return user, nil
}

// GetUser 按 ID 查询用户
func (uc *UserUseCase) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := uc.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return user, nil
}

// ListUsers 按用户名排序列出全部用户
func (uc *UserUseCase) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := uc.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list users")
	}
	return users, nil
}

// ListDepartments 按名称排序列出部门
func (uc *UserUseCase) ListDepartments(ctx context.Context) ([]*Department, error) {
	depts, err := uc.repo.ListDepartments(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list departments")
	}
	return depts, nil
}

// GetMemory 读取用户记忆，不存在时为空串
func (uc *UserUseCase) GetMemory(ctx context.Context, userID int64) (string, error) {
	mem, err := uc.repo.GetMemory(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer, "load memory")
	}
	return mem, nil
}

// SetMemory 覆盖用户记忆
func (uc *UserUseCase) SetMemory(ctx context.Context, userID int64, memory string) error {
	if err := uc.repo.SetMemory(ctx, userID, memory, uc.now()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "save memory")
	}
	return nil
}
