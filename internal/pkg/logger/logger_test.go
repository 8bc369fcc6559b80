package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "默认配置", config: DefaultConfig()},
		{name: "json 控制台", config: &Config{Level: "debug", Format: "json", Output: "console"}},
		{
			name: "文件输出",
			config: &Config{
				Level:  "info",
				Format: "json",
				Output: "file",
				File: FileConfig{
					Filename: filepath.Join(t.TempDir(), "app.log"),
					MaxSize:  1,
					MaxAge:   1,
				},
			},
		},
		{name: "非法级别", config: &Config{Level: "verbose", Format: "json", Output: "console"}, wantErr: true},
		{name: "非法格式", config: &Config{Level: "info", Format: "xml", Output: "console"}, wantErr: true},
		{name: "缺少文件名", config: &Config{Level: "info", Format: "json", Output: "file"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.Info("hello")
		})
	}
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewFromCore(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "42")
	ctx = WithThreadID(ctx, "thread-9")
	l.WithContext(ctx).Info("chunked", zap.Int("chunks", 3))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["user_id"])
	assert.Equal(t, "thread-9", fields["thread_id"])
	assert.EqualValues(t, 3, fields["chunks"])
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), NewFromCore(core))
	FromContext(WithRequestID(ctx, "abc")).Info("msg")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abc", logs.All()[0].ContextMap()["request_id"])
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewFromCore(core)

	r := gin.New()
	r.Use(GinLogger(l, "/metrics"), GinRecovery(l))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	// /ok 与 /panic 各一条请求日志，/metrics 被跳过
	assert.Equal(t, 2, logs.FilterMessage("HTTP Request").Len())
}
