package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// ConversationRepo 会话与消息存储
type ConversationRepo interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, userID, id int64) (*Conversation, error)
	GetByThreadID(ctx context.Context, userID int64, threadID string) (*Conversation, error)
	// List 按 updated_at 倒序
	List(ctx context.Context, userID int64) ([]*Conversation, error)
	// ListThreads 仅包含带 thread_id 的会话，按 updated_at 倒序分页
	ListThreads(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error)
	Delete(ctx context.Context, userID, id int64) error

	// AddMessage 写入消息并刷新会话 updated_at
	AddMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)
	FirstMessage(ctx context.Context, conversationID int64) (*Message, error)
}

// ConversationUseCase 会话业务逻辑
type ConversationUseCase struct {
	repo   ConversationRepo
	logger *logger.Logger
	now    func() time.Time
}

// NewConversationUseCase 创建会话用例
func NewConversationUseCase(repo ConversationRepo, log *logger.Logger) *ConversationUseCase {
	if log == nil {
		log = logger.L()
	}
	return &ConversationUseCase{
		repo:   repo,
		logger: log.Named("conversation"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListConversations 用户的会话列表
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	convs, err := uc.repo.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list conversations")
	}
	return convs, nil
}

// CreateConversation 新建会话，同时分配 thread_id 以便外部 API 访问
func (uc *ConversationUseCase) CreateConversation(ctx context.Context, userID int64, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := uc.now()
	conv := &Conversation{
		UserID:    userID,
		Title:     title,
		ThreadID:  uuid.NewString(),
		Metadata:  map[string]any{"graph_id": DefaultGraphID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, conv); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "create conversation")
	}
	return conv, nil
}

// GetConversation 读取会话，非本人的会话视为不存在
func (uc *ConversationUseCase) GetConversation(ctx context.Context, userID, id int64) (*Conversation, error) {
	conv, err := uc.repo.Get(ctx, userID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrConversationNotFound)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return conv, nil
}

// DeleteConversation 删除会话及其消息，会话不存在时静默返回
func (uc *ConversationUseCase) DeleteConversation(ctx context.Context, userID, id int64) error {
	err := uc.repo.Delete(ctx, userID, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "delete conversation")
	}
	return nil
}

// ListMessages 会话消息，按写入顺序
func (uc *ConversationUseCase) ListMessages(ctx context.Context, userID, conversationID int64) ([]*Message, error) {
	if _, err := uc.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := uc.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list messages")
	}
	return msgs, nil
}

// AddMessage 追加消息，role 只能是 user 或 assistant
func (uc *ConversationUseCase) AddMessage(ctx context.Context, userID, conversationID int64, role, content string) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, apperrors.New(apperrors.ErrInvalidMessageRole, "role must be 'user' or 'assistant'")
	}
	if _, err := uc.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return uc.insert(ctx, conversationID, role, content)
}

func (uc *ConversationUseCase) insert(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      uc.now(),
	}
	if err := uc.repo.AddMessage(ctx, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "save message")
	}

	uc.logger.WithContext(ctx).Debug("message saved",
		zap.Int64("conversation_id", conversationID),
		zap.String("role", role),
		zap.Int("chars", len([]rune(content))))
	return msg, nil
}
