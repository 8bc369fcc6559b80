// Package lgapi 提供与 LangGraph SDK（agent-chat-ui）兼容的外部接口。
// 响应体直接返回 SDK 期望的结构，错误为 {"detail": "..."}。
package lgapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	convbiz "github.com/lk2023060901/chatbot-rag/internal/conversation/biz"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/sse"
	"github.com/lk2023060901/chatbot-rag/internal/rag"
	userbiz "github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultName      = "chatBot_RAG"
	DefaultTokenName = "agent-chat-ui"

	defaultSearchLimit = 10
)

// Asker 流式问答
type Asker interface {
	AskStream(ctx context.Context, question string, history []rag.Message, memory string, fn func(token string) error) (*rag.Answer, error)
}

// Auditor 审计日志记录
type Auditor interface {
	Log(ctx context.Context, userID *int64, action, target string, details any) error
}

// Config 外部接口配置
type Config struct {
	Name      string
	Version   string
	TokenName string // /auth/login 签发的 API token 名称
}

// Handler 外部 API
type Handler struct {
	cfg     Config
	users   *userbiz.UserUseCase
	convs   *convbiz.ConversationUseCase
	asker   Asker
	auditor Auditor
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewHandler 创建外部 API，metrics 可为 nil
func NewHandler(
	cfg Config,
	users *userbiz.UserUseCase,
	convs *convbiz.ConversationUseCase,
	asker Asker,
	auditor Auditor,
	m *metrics.Metrics,
	log *logger.Logger,
) *Handler {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.TokenName == "" {
		cfg.TokenName = DefaultTokenName
	}
	return &Handler{
		cfg:     cfg,
		users:   users,
		convs:   convs,
		asker:   asker,
		auditor: auditor,
		metrics: m,
		logger:  log.Named("lgapi"),
	}
}

// RegisterRoutes 注册到根路由，/info 与 /auth/login 不需要 API key。
// 跨域由引擎级 CORS 中间件处理
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/info", h.Info)
	r.POST("/auth/login", h.Login)

	threads := r.Group("/threads", middleware.APIKeyAuth(h.users, h.logger))
	threads.POST("", h.CreateThread)
	threads.POST("/search", h.SearchThreads)
	threads.GET("/:thread_id", h.GetThread)
	threads.GET("/:thread_id/history", h.History)
	threads.POST("/:thread_id/history", h.History)
	threads.GET("/:thread_id/state", h.State)
	threads.POST("/:thread_id/state", h.State)
	threads.POST("/:thread_id/runs/stream", h.RunStream)
}

// Info 服务信息
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": h.cfg.Name, "version": h.cfg.Version})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 用户名密码登录并签发 API token
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if apperrors.ExtractCode(err) == apperrors.ErrAuthInvalidCredentials {
			detail(c, http.StatusUnauthorized, "Invalid username/password")
			return
		}
		abort(c, err)
		return
	}

	key, err := h.users.CreateAPIToken(ctx, user.ID, h.cfg.TokenName)
	if err != nil {
		abort(c, err)
		return
	}
	h.audit(ctx, user.ID, "api_token.create", user.Username, map[string]any{"name": h.cfg.TokenName})
	c.JSON(http.StatusOK, gin.H{
		"api_key": key,
		"user":    gin.H{"id": user.ID, "username": user.Username},
	})
}

// SearchThreads 分页列出线程，再按 metadata.graph_id / assistant_id 过滤
func (h *Handler) SearchThreads(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	limit := int(gjson.GetBytes(body, "limit").Int())
	if limit == 0 {
		limit = defaultSearchLimit
	}
	offset := int(gjson.GetBytes(body, "offset").Int())
	graphID := gjson.GetBytes(body, "metadata.graph_id").String()
	assistantID := gjson.GetBytes(body, "metadata.assistant_id").String()

	p, _ := middleware.CurrentPrincipal(c)
	threads, err := h.convs.ListThreads(c.Request.Context(), p.UserID, limit, offset)
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]*convbiz.Thread, 0, len(threads))
	for _, t := range threads {
		if graphID != "" && metaString(t.Metadata, "graph_id") != graphID {
			continue
		}
		if assistantID != "" && metaString(t.Metadata, "assistant_id") != assistantID {
			continue
		}
		out = append(out, t)
	}
	c.JSON(http.StatusOK, out)
}

// CreateThread 创建线程，未提供 thread_id 时生成 UUID
func (h *Handler) CreateThread(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	threadID := gjson.GetBytes(body, "thread_id").String()
	if threadID == "" {
		threadID = gjson.GetBytes(body, "threadId").String()
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	meta, _ := gjson.GetBytes(body, "metadata").Value().(map[string]any)

	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	thread, err := h.convs.CreateThread(ctx, p.UserID, threadID, meta)
	if err != nil {
		abort(c, err)
		return
	}
	h.audit(ctx, p.UserID, "thread.create", thread.ThreadID, nil)
	c.JSON(http.StatusOK, thread)
}

// GetThread 线程元信息
func (h *Handler) GetThread(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	thread, err := h.convs.GetThread(c.Request.Context(), p.UserID, c.Param("thread_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// History 只返回一个包含完整状态的检查点
func (h *Handler) History(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	state, err := h.convs.GetThreadState(c.Request.Context(), p.UserID, c.Param("thread_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, []*convbiz.ThreadState{state})
}

// State 线程当前状态
func (h *Handler) State(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	state, err := h.convs.GetThreadState(c.Request.Context(), p.UserID, c.Param("thread_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// RunStream 以 input.messages 最后一条为问题流式回答
//
// 每个增量发送 messages 事件 [{type:ai, content, id}, null]，失败时发送 error 事件。
// 提问与完整回答都会写入线程。
func (h *Handler) RunStream(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		detail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	messages := gjson.GetBytes(body, "input.messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		detail(c, http.StatusBadRequest, "input.messages is required")
		return
	}
	list := messages.Array()
	question := strings.TrimSpace(contentText(list[len(list)-1].Get("content")))
	if question == "" {
		detail(c, http.StatusBadRequest, "Last message content is empty")
		return
	}

	p, _ := middleware.CurrentPrincipal(c)
	threadID := c.Param("thread_id")
	ctx := logger.WithThreadID(c.Request.Context(), threadID)
	log := h.logger.WithContext(ctx)

	stored, err := h.convs.ThreadHistory(ctx, p.UserID, threadID)
	if err != nil {
		abort(c, err)
		return
	}
	if _, err := h.convs.AppendThreadMessage(ctx, p.UserID, threadID, "human", question); err != nil {
		abort(c, err)
		return
	}
	h.audit(ctx, p.UserID, "thread.message.human", threadID, nil)

	memory, err := h.users.GetMemory(ctx, p.UserID)
	if err != nil {
		log.Warn("failed to load user memory", zap.Error(err))
	}

	c.Header("Content-Location", "/threads/"+threadID+"/runs/"+uuid.NewString())
	w := sse.NewWriter(c)
	aiID := "ai-" + uuid.NewString()

	answer, err := h.asker.AskStream(ctx, question, toHistory(stored), memory, func(token string) error {
		return w.Send("messages", []any{gin.H{"type": "ai", "content": token, "id": aiID}, nil})
	})
	h.metrics.ObserveChat("lgapi", err)
	if err != nil {
		if errors.Is(err, sse.ErrClientGone) {
			log.Info("client disconnected during run")
			return
		}
		log.Error("run failed", zap.Error(err))
		_ = w.Send("error", gin.H{"message": err.Error()})
		return
	}

	if _, err := h.convs.AppendThreadMessage(ctx, p.UserID, threadID, "ai", answer.Content); err != nil {
		log.Error("failed to save answer", zap.Error(err))
		_ = w.Send("error", gin.H{"message": "failed to save answer"})
		return
	}
	h.audit(ctx, p.UserID, "thread.message.ai", threadID, map[string]any{"chars": len([]rune(answer.Content))})
}

func (h *Handler) audit(ctx context.Context, userID int64, action, target string, details any) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Log(ctx, &userID, action, target, details); err != nil {
		h.logger.WithContext(ctx).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func toHistory(msgs []*convbiz.Message) []rag.Message {
	out := make([]rag.Message, len(msgs))
	for i, m := range msgs {
		role := rag.RoleUser
		if m.Role == convbiz.RoleAssistant {
			role = rag.RoleAssistant
		}
		out[i] = rag.Message{Role: role, Content: m.Content}
	}
	return out
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// abort 按业务错误码输出 {"detail"}，5xx 额外记录日志
func abort(c *gin.Context, err error) {
	code := apperrors.ExtractCode(err)
	status := apperrors.GetHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	detail(c, status, apperrors.FormatError(code, apperrors.GetDetails(err)))
}
