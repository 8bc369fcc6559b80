package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/conversation/biz"
	"github.com/lk2023060901/chatbot-rag/internal/conversation/data"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database/dbtest"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/rag"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	tokens   []string
	err      error
	question string
	history  []rag.Message
	memory   string
}

func (f *fakeAsker) AskStream(_ context.Context, q string, history []rag.Message, memory string, fn func(string) error) (*rag.Answer, error) {
	f.question, f.history, f.memory = q, history, memory
	if f.err != nil {
		return nil, f.err
	}
	for _, tok := range f.tokens {
		if err := fn(tok); err != nil {
			return nil, err
		}
	}
	return &rag.Answer{
		Content: strings.Join(f.tokens, ""),
		Sources: []storage.SearchHit{{Record: storage.Record{Metadata: map[string]any{"source": "/data/faq.md"}}}},
	}, nil
}

type fakeMemory map[int64]string

func (f fakeMemory) GetMemory(_ context.Context, userID int64) (string, error) {
	return f[userID], nil
}

type fakeAuditor struct{ actions []string }

func (f *fakeAuditor) Log(_ context.Context, _ *int64, action, _ string, _ any) error {
	f.actions = append(f.actions, action)
	return nil
}

type env struct {
	router  *gin.Engine
	asker   *fakeAsker
	auditor *fakeAuditor
	uc      *biz.ConversationUseCase
	jwt     *auth.JWTManager
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t, data.Models()...)
	uc := biz.NewConversationUseCase(data.NewConversationRepo(db), logger.NewNop())
	asker := &fakeAsker{tokens: []string{"你", "好"}}
	a := &fakeAuditor{}
	svc := NewConversationService(uc, asker, fakeMemory{1: "称呼我老王"}, a, nil, logger.NewNop())

	m := auth.NewJWTManager("secret", "chatbot-rag", time.Hour)
	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1", middleware.JWTAuth(m, logger.NewNop())))
	return &env{router: r, asker: asker, auditor: a, uc: uc, jwt: m}
}

func (e *env) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateAccessToken(auth.Principal{UserID: userID, Username: "u" + strconv.FormatInt(userID, 10)})
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var out struct {
		Data any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Data
}

func TestConversationCRUD(t *testing.T) {
	e := setup(t)
	tok := e.token(t, 1)

	rec := e.do(t, http.MethodPost, "/api/v1/conversations", tok, gin.H{"title": "报销"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeData(t, rec).(map[string]any)
	assert.Equal(t, "报销", conv["title"])
	id := strconv.FormatInt(int64(conv["id"].(float64)), 10)

	rec = e.do(t, http.MethodGet, "/api/v1/conversations", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData(t, rec), 1)

	t.Run("其他用户不可见", func(t *testing.T) {
		other := e.token(t, 2)
		rec := e.do(t, http.MethodGet, "/api/v1/conversations/"+id+"/messages", other, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = e.do(t, http.MethodGet, "/api/v1/conversations", other, nil)
		assert.Len(t, decodeData(t, rec), 0)
	})

	t.Run("非法ID", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/conversations/abc/messages", tok, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec = e.do(t, http.MethodDelete, "/api/v1/conversations/"+id, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/v1/conversations", tok, nil)
	assert.Len(t, decodeData(t, rec), 0)
	assert.Equal(t, []string{"conversation.delete"}, e.auditor.actions)
}

func TestChatStream(t *testing.T) {
	e := setup(t)
	tok := e.token(t, 1)
	ctx := context.Background()

	conv, err := e.uc.CreateConversation(ctx, 1, "")
	require.NoError(t, err)
	_, err = e.uc.AddMessage(ctx, 1, conv.ID, biz.RoleUser, "上一个问题")
	require.NoError(t, err)
	_, err = e.uc.AddMessage(ctx, 1, conv.ID, biz.RoleAssistant, "上一个回答")
	require.NoError(t, err)
	path := "/api/v1/conversations/" + strconv.FormatInt(conv.ID, 10) + "/chat"

	rec := e.do(t, http.MethodPost, path, tok, gin.H{"message": "年假几天？"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: token\ndata: {\"content\":\"你\"}")
	assert.Contains(t, body, "event: token\ndata: {\"content\":\"好\"}")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"sources":["faq.md"]`)

	assert.Equal(t, "年假几天？", e.asker.question)
	assert.Equal(t, "称呼我老王", e.asker.memory)
	require.Len(t, e.asker.history, 2)
	assert.Equal(t, rag.RoleAssistant, e.asker.history[1].Role)

	msgs, err := e.uc.ListMessages(ctx, 1, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "年假几天？", msgs[2].Content)
	assert.Equal(t, biz.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "你好", msgs[3].Content)
	assert.Equal(t, []string{"conversation.chat"}, e.auditor.actions)

	t.Run("索引未构建", func(t *testing.T) {
		e.asker.err = rag.ErrIndexNotBuilt
		rec := e.do(t, http.MethodPost, path, tok, gin.H{"message": "再问一次"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "event: error")

		msgs, err := e.uc.ListMessages(ctx, 1, conv.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 5)
	})

	t.Run("他人会话", func(t *testing.T) {
		e.asker.err = nil
		rec := e.do(t, http.MethodPost, path, e.token(t, 2), gin.H{"message": "hi"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("缺少消息", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, path, tok, gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestChatErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", chatErrorMessage(errors.New("boom")))
	assert.NotEmpty(t, chatErrorMessage(rag.ErrIndexNotBuilt))
}
