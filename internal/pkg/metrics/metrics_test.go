package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveChunks("markdown_aware", 3)
	m.ObserveSpans(2, 1)
	m.ObserveIngest(time.Second, nil)
	m.ObserveIngest(time.Second, errors.New("x"))
	m.ObserveChat("web", nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.chunksProduced.WithLabelValues("markdown_aware")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spansLocated.WithLabelValues("unresolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestRuns.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveChunks("plain_window", 1)
		m.ObserveSpans(1, 1)
		m.ObserveChat("api", nil)
	})
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/ping", "GET", "200")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatbot_rag_http_requests_total")
}
