package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/conversation/biz"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/sse"
	"github.com/lk2023060901/chatbot-rag/internal/rag"
	"go.uber.org/zap"
)

// MemoryStore 读取用户记忆
type MemoryStore interface {
	GetMemory(ctx context.Context, userID int64) (string, error)
}

// Auditor 审计日志记录
type Auditor interface {
	Log(ctx context.Context, userID *int64, action, target string, details any) error
}

// Asker 流式问答
type Asker interface {
	AskStream(ctx context.Context, question string, history []rag.Message, memory string, fn func(token string) error) (*rag.Answer, error)
}

// ConversationService Web 端会话与聊天接口
type ConversationService struct {
	uc      *biz.ConversationUseCase
	asker   Asker
	memory  MemoryStore
	auditor Auditor
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewConversationService 创建会话服务
func NewConversationService(
	uc *biz.ConversationUseCase,
	asker Asker,
	memory MemoryStore,
	auditor Auditor,
	m *metrics.Metrics,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		uc:      uc,
		asker:   asker,
		memory:  memory,
		auditor: auditor,
		metrics: m,
		logger:  log,
	}
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ListConversations 当前用户的会话
func (s *ConversationService) ListConversations(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	convs, err := s.uc.ListConversations(c.Request.Context(), p.UserID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, convs)
}

// CreateConversation 新建会话
func (s *ConversationService) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	p, _ := middleware.CurrentPrincipal(c)
	conv, err := s.uc.CreateConversation(c.Request.Context(), p.UserID, req.Title)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, conv)
}

// DeleteConversation 删除会话
func (s *ConversationService) DeleteConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentPrincipal(c)
	if err := s.uc.DeleteConversation(c.Request.Context(), p.UserID, id); err != nil {
		response.HandleError(c, err)
		return
	}
	s.audit(c.Request.Context(), p.UserID, "conversation.delete", strconv.FormatInt(id, 10), nil)
	response.Success(c, nil)
}

// ListMessages 会话消息
func (s *ConversationService) ListMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentPrincipal(c)
	msgs, err := s.uc.ListMessages(c.Request.Context(), p.UserID, id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, msgs)
}

// Chat 提问并以 SSE 流式返回回答；问答完成后两条消息都会保存
//
// 事件：token {content}，done {message_id, sources}，error {message}
func (s *ConversationService) Chat(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	log := s.logger.WithContext(ctx).With(zap.Int64("conversation_id", id))

	stored, err := s.uc.ListMessages(ctx, p.UserID, id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if _, err := s.uc.AddMessage(ctx, p.UserID, id, biz.RoleUser, req.Message); err != nil {
		response.HandleError(c, err)
		return
	}

	memory, err := s.memory.GetMemory(ctx, p.UserID)
	if err != nil {
		log.Warn("failed to load user memory", zap.Error(err))
	}

	w := sse.NewWriter(c)
	answer, err := s.asker.AskStream(ctx, req.Message, toHistory(stored), memory, func(token string) error {
		return w.Send("token", gin.H{"content": token})
	})
	s.metrics.ObserveChat("web", err)
	if err != nil {
		if errors.Is(err, sse.ErrClientGone) {
			log.Info("client disconnected during chat")
			return
		}
		log.Error("chat failed", zap.Error(err))
		_ = w.Send("error", gin.H{"message": chatErrorMessage(err)})
		return
	}

	msg, err := s.uc.AddMessage(ctx, p.UserID, id, biz.RoleAssistant, answer.Content)
	if err != nil {
		log.Error("failed to save answer", zap.Error(err))
		_ = w.Send("error", gin.H{"message": "failed to save answer"})
		return
	}

	sources := make([]string, 0, len(answer.Sources))
	for _, h := range answer.Sources {
		sources = append(sources, rag.SourceName(h.Metadata))
	}
	s.audit(ctx, p.UserID, "conversation.chat", strconv.FormatInt(id, 10), map[string]any{"chars": len([]rune(answer.Content))})
	_ = w.Send("done", gin.H{"message_id": msg.ID, "sources": sources})
}

func (s *ConversationService) audit(ctx context.Context, userID int64, action, target string, details any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, &userID, action, target, details); err != nil {
		s.logger.WithContext(ctx).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// RegisterRoutes 注册路由，group 需已挂载认证
func (s *ConversationService) RegisterRoutes(group *gin.RouterGroup) {
	convs := group.Group("/conversations")
	convs.GET("", s.ListConversations)
	convs.POST("", s.CreateConversation)
	convs.DELETE("/:id", s.DeleteConversation)
	convs.GET("/:id/messages", s.ListMessages)
	convs.POST("/:id/chat", s.Chat)
}

func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid conversation id")
		return 0, false
	}
	return id, true
}

func toHistory(msgs []*biz.Message) []rag.Message {
	out := make([]rag.Message, len(msgs))
	for i, m := range msgs {
		role := rag.RoleUser
		if m.Role == biz.RoleAssistant {
			role = rag.RoleAssistant
		}
		out[i] = rag.Message{Role: role, Content: m.Content}
	}
	return out
}

// chatErrorMessage 面向用户的错误提示
func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, rag.ErrIndexNotBuilt):
		return apperrors.GetMessage(apperrors.ErrKBIndexNotBuilt)
	case errors.Is(err, rag.ErrEmptyQuestion):
		return "question is empty"
	default:
		return err.Error()
	}
}
