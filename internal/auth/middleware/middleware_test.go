package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	p, _ := CurrentPrincipal(c)
	ctxP, _ := auth.PrincipalFromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "ctx_user_id": ctxP.UserID, "admin": p.IsAdmin})
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	m := auth.NewJWTManager("s", "test", time.Hour)
	r := gin.New()
	r.GET("/me", JWTAuth(m, logger.NewNop()), whoami)
	r.GET("/admin", JWTAuth(m, logger.NewNop()), RequireAdmin(), whoami)

	userToken, _, err := m.GenerateAccessToken(auth.Principal{UserID: 5})
	require.NoError(t, err)
	adminToken, _, err := m.GenerateAccessToken(auth.Principal{UserID: 1, IsAdmin: true})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"缺少凭证", "/me", "", http.StatusUnauthorized},
		{"格式错误", "/me", "Token abc", http.StatusUnauthorized},
		{"无效 token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"普通用户", "/me", "Bearer " + userToken, http.StatusOK},
		{"查询参数 token", "/me?token=" + userToken, "", http.StatusOK},
		{"非管理员访问管理接口", "/admin", "Bearer " + userToken, http.StatusForbidden},
		{"管理员", "/admin", "Bearer " + adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := do(r, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	assert.JSONEq(t, `{"user_id":5,"ctx_user_id":5,"admin":false}`, do(r, req).Body.String())
}

type fakeTokens map[string]auth.Principal

func (f fakeTokens) AuthenticateAPIToken(_ context.Context, token string) (auth.Principal, error) {
	p, ok := f[token]
	if !ok {
		return auth.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestAPIKeyAuth(t *testing.T) {
	r := gin.New()
	r.GET("/threads", APIKeyAuth(fakeTokens{"good": {UserID: 9}}, logger.NewNop()), whoami)

	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set(APIKeyHeader, "bad")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set(APIKeyHeader, "good")
	rec := do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":9`)

	req = httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, do(r, req).Code)
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "t:", logger.NewNop())

	r := gin.New()
	r.Use(RateLimiter(rc, RateLimiterConfig{MaxRequests: 2, Window: time.Minute}, logger.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
	rec := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRateLimiter_RedisDownAllows(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "t:", logger.NewNop())
	mr.Close()

	r := gin.New()
	r.Use(RateLimiter(rc, RateLimiterConfig{MaxRequests: 1, Window: time.Minute}, logger.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
