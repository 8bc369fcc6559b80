package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database/dbtest"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"github.com/lk2023060901/chatbot-rag/internal/user/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAudit struct {
	userID *int64
	action string
	target string
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []recordedAudit
}

func (f *fakeAuditor) Log(_ context.Context, userID *int64, action, target string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedAudit{userID, action, target})
	return nil
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.action
	}
	return out
}

type env struct {
	router  *gin.Engine
	uc      *biz.UserUseCase
	auditor *fakeAuditor
	jwt     *auth.JWTManager
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t, data.Models()...)
	uc := biz.NewUserUseCase(data.NewUserRepo(db), logger.NewNop())
	m := auth.NewJWTManager("secret", "chatbot-rag", time.Hour)
	a := &fakeAuditor{}
	svc := NewUserService(uc, m, a, logger.NewNop())

	r := gin.New()
	api := r.Group("/api/v1")
	authed := api.Group("", middleware.JWTAuth(m, logger.NewNop()))
	svc.RegisterRoutes(api, authed)
	return &env{router: r, uc: uc, auditor: a, jwt: m}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (e *env) login(t *testing.T, username, password string) string {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["data"].(map[string]any)["access_token"].(string)
}

func TestSetupAndLogin(t *testing.T) {
	e := setup(t)

	rec, body := e.do(t, http.MethodPost, "/api/v1/setup", "", gin.H{"username": "root", "password": "password1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["data"].(map[string]any)["is_admin"])

	rec, _ = e.do(t, http.MethodPost, "/api/v1/setup", "", gin.H{"username": "root2", "password": "password1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "root", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := e.login(t, "root", "password1")
	claims, err := e.jwt.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	assert.Equal(t, []string{"user.bootstrap", "auth.login"}, e.auditor.actions())
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	e := setup(t)
	e.do(t, http.MethodPost, "/api/v1/setup", "", gin.H{"username": "root", "password": "password1"})
	admin := e.login(t, "root", "password1")

	rec, _ := e.do(t, http.MethodPost, "/api/v1/users", admin, gin.H{"username": "bob", "password": "password1", "department": "sales"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = e.do(t, http.MethodPost, "/api/v1/users", admin, gin.H{"username": "bob", "password": "password1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/users", admin, gin.H{"username": "eve", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bob := e.login(t, "bob", "password1")
	rec, _ = e.do(t, http.MethodPost, "/api/v1/users", bob, gin.H{"username": "mallory", "password": "password1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := e.do(t, http.MethodGet, "/api/v1/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)

	rec, body = e.do(t, http.MethodGet, "/api/v1/me", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sales", body["data"].(map[string]any)["department"])
}

func TestMemoryEndpoints(t *testing.T) {
	e := setup(t)
	e.do(t, http.MethodPost, "/api/v1/setup", "", gin.H{"username": "root", "password": "password1"})
	token := e.login(t, "root", "password1")

	rec, body := e.do(t, http.MethodGet, "/api/v1/me/memory", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", body["data"].(map[string]any)["memory"])

	rec, _ = e.do(t, http.MethodPut, "/api/v1/me/memory", token, gin.H{"memory": "用中文回答"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, body = e.do(t, http.MethodGet, "/api/v1/me/memory", token, nil)
	assert.Equal(t, "用中文回答", body["data"].(map[string]any)["memory"])

	rec, _ = e.do(t, http.MethodGet, "/api/v1/me/memory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPITokenEndpoints(t *testing.T) {
	e := setup(t)
	e.do(t, http.MethodPost, "/api/v1/setup", "", gin.H{"username": "root", "password": "password1"})
	token := e.login(t, "root", "password1")

	claims, err := e.jwt.VerifyAccessToken(token)
	require.NoError(t, err)
	raw, err := e.uc.CreateAPIToken(context.Background(), claims.UserID, "agent-chat-ui")
	require.NoError(t, err)

	rec, body := e.do(t, http.MethodGet, "/api/v1/me/api-tokens", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := body["data"].([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	assert.Equal(t, "agent-chat-ui", item["name"])
	assert.Nil(t, item["revoked_at"])
	assert.NotContains(t, rec.Body.String(), raw)

	id := int64(item["id"].(float64))
	path := "/api/v1/me/api-tokens/" + strconv.FormatInt(id, 10)

	rec, _ = e.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = e.uc.AuthenticateAPIToken(context.Background(), raw)
	assert.Error(t, err)

	t.Run("重复吊销返回404", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodDelete, path, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("非法id", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodDelete, "/api/v1/me/api-tokens/abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Contains(t, e.auditor.actions(), "api_token.revoke")
}
