package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/validator"
	"go.uber.org/zap"
)

const (
	DefaultAuditLimit = 200
	MaxAuditLimit     = 5000
)

// ErrNotFound 仓储层记录不存在
var ErrNotFound = errors.New("admin: record not found")

// AuditEvent 审计事件
type AuditEvent struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRepo 审计日志存储
type AuditRepo interface {
	Create(ctx context.Context, event *AuditEvent) error
	// ListRecent 按 ID 倒序返回最近 limit 条
	ListRecent(ctx context.Context, limit int) ([]*AuditEvent, error)
}

// AuditUseCase 审计日志
type AuditUseCase struct {
	repo   AuditRepo
	logger *logger.Logger
	now    func() time.Time
}

// NewAuditUseCase 创建审计用例
func NewAuditUseCase(repo AuditRepo, log *logger.Logger) *AuditUseCase {
	if log == nil {
		log = logger.L()
	}
	return &AuditUseCase{
		repo:   repo,
		logger: log.Named("audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Log 写入一条审计记录。details 序列化为 JSON，map 的键按字典序输出
func (uc *AuditUseCase) Log(ctx context.Context, userID *int64, action, target string, details any) error {
	event := &AuditEvent{
		UserID:    userID,
		Action:    action,
		Target:    target,
		Details:   encodeDetails(details),
		CreatedAt: uc.now(),
	}
	if err := uc.repo.Create(ctx, event); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "write audit log")
	}

	uc.logger.WithContext(ctx).Debug("audit",
		zap.String("action", action),
		zap.String("target", target),
		zap.Int64p("user_id", userID))
	return nil
}

// List 最近的审计记录，limit 限制在 [1, 5000]
func (uc *AuditUseCase) List(ctx context.Context, limit int) ([]*AuditEvent, error) {
	events, err := uc.repo.ListRecent(ctx, validator.Clamp(limit, 1, MaxAuditLimit))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list audit log")
	}
	return events, nil
}

func encodeDetails(details any) string {
	if details == nil {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprint(details)
	}
	return string(b)
}
