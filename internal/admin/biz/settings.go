package biz

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/auth"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// 设置项
const (
	SettingKBDeletePolicy  = "kb_delete_policy"
	SettingKBReindexPolicy = "kb_reindex_policy"
)

// 知识库策略取值
const (
	PolicyAdminOnly    = "admin_only"
	PolicyAllUsers     = "all_users"
	PolicyUploaderOnly = "uploader_only"
)

var allowedValues = map[string][]string{
	SettingKBDeletePolicy:  {PolicyAdminOnly, PolicyAllUsers, PolicyUploaderOnly},
	SettingKBReindexPolicy: {PolicyAdminOnly, PolicyAllUsers},
}

// Setting 键值设置
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy *int64    `json:"updated_by"`
}

// SettingRepo 设置存储
type SettingRepo interface {
	Get(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context) ([]*Setting, error)
	Upsert(ctx context.Context, s *Setting) error
}

// SettingsUseCase 系统设置与知识库权限策略
type SettingsUseCase struct {
	repo   SettingRepo
	logger *logger.Logger
	now    func() time.Time
}

// NewSettingsUseCase 创建设置用例
func NewSettingsUseCase(repo SettingRepo, log *logger.Logger) *SettingsUseCase {
	if log == nil {
		log = logger.L()
	}
	return &SettingsUseCase{
		repo:   repo,
		logger: log.Named("settings"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Set 写入设置，只接受已知键及其合法取值
func (uc *SettingsUseCase) Set(ctx context.Context, userID int64, key, value string) (*Setting, error) {
	value = strings.TrimSpace(value)
	allowed, ok := allowedValues[key]
	if !ok {
		return nil, apperrors.New(apperrors.ErrSettingInvalid, "unknown setting "+key)
	}
	if !slices.Contains(allowed, value) {
		return nil, apperrors.New(apperrors.ErrSettingInvalid,
			key+" must be one of "+strings.Join(allowed, ", "))
	}

	s := &Setting{Key: key, Value: value, UpdatedAt: uc.now(), UpdatedBy: &userID}
	if err := uc.repo.Upsert(ctx, s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "save setting")
	}
	uc.logger.WithContext(ctx).Info("setting updated",
		zap.String("key", key), zap.String("value", value), zap.Int64("user_id", userID))
	return s, nil
}

// List 全部设置，缺失的策略项以默认值补齐
func (uc *SettingsUseCase) List(ctx context.Context) ([]*Setting, error) {
	stored, err := uc.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list settings")
	}

	out := make([]*Setting, 0, len(allowedValues))
	for _, key := range []string{SettingKBDeletePolicy, SettingKBReindexPolicy} {
		idx := slices.IndexFunc(stored, func(s *Setting) bool { return s.Key == key })
		if idx >= 0 {
			s := *stored[idx]
			s.Value = uc.normalize(key, s.Value)
			out = append(out, &s)
			continue
		}
		out = append(out, &Setting{Key: key, Value: PolicyAdminOnly})
	}
	return out, nil
}

// KBDeletePolicy 当前删除策略，未设置或非法时为 admin_only
func (uc *SettingsUseCase) KBDeletePolicy(ctx context.Context) string {
	return uc.policy(ctx, SettingKBDeletePolicy)
}

// KBReindexPolicy 当前重建索引策略，未设置或非法时为 admin_only
func (uc *SettingsUseCase) KBReindexPolicy(ctx context.Context) string {
	return uc.policy(ctx, SettingKBReindexPolicy)
}

// CanDeleteKBFile 判断用户能否删除知识库文件。uploaderID 为空表示无上传记录
func (uc *SettingsUseCase) CanDeleteKBFile(ctx context.Context, p auth.Principal, uploaderID *int64) bool {
	switch uc.KBDeletePolicy(ctx) {
	case PolicyAllUsers:
		return true
	case PolicyUploaderOnly:
		if p.IsAdmin {
			return true
		}
		return uploaderID != nil && *uploaderID == p.UserID
	default:
		return p.IsAdmin
	}
}

// CanReindexKB 判断用户能否重建索引
func (uc *SettingsUseCase) CanReindexKB(ctx context.Context, p auth.Principal) bool {
	if uc.KBReindexPolicy(ctx) == PolicyAllUsers {
		return true
	}
	return p.IsAdmin
}

func (uc *SettingsUseCase) policy(ctx context.Context, key string) string {
	s, err := uc.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			uc.logger.WithContext(ctx).Warn("failed to load setting, using default",
				zap.String("key", key), zap.Error(err))
		}
		return PolicyAdminOnly
	}
	return uc.normalize(key, s.Value)
}

func (uc *SettingsUseCase) normalize(key, value string) string {
	value = strings.TrimSpace(value)
	if slices.Contains(allowedValues[key], value) {
		return value
	}
	return PolicyAdminOnly
}
