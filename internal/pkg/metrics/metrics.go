package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot_rag"

// Metrics 进程内的 Prometheus 指标集合
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	chunksProduced *prometheus.CounterVec
	spansLocated   *prometheus.CounterVec
	ingestRuns     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	chatRequests   *prometheus.CounterVec
}

// New 创建独立 registry 下的指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		chunksProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Chunks produced by the segmenter, by strategy.",
		}, []string{"strategy"}),
		spansLocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_spans_total",
			Help:      "Span lookups by outcome (resolved or unresolved).",
		}, []string{"outcome"}),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingest runs by result.",
		}, []string{"result"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of a full ingest run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by surface and result.",
		}, []string{"surface", "result"}),
	}
	reg.MustRegister(m.httpRequests, m.httpLatency, m.chunksProduced, m.spansLocated,
		m.ingestRuns, m.ingestDuration, m.chatRequests)
	return m
}

// Registry 暴露给测试
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// GinMiddleware 记录请求数与耗时；路由使用注册时的模板避免高基数
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// ObserveChunks 记录分块数量
func (m *Metrics) ObserveChunks(strategy string, n int) {
	if m == nil {
		return
	}
	m.chunksProduced.WithLabelValues(strategy).Add(float64(n))
}

// ObserveSpans 记录 span 定位结果
func (m *Metrics) ObserveSpans(resolved, unresolved int) {
	if m == nil {
		return
	}
	m.spansLocated.WithLabelValues("resolved").Add(float64(resolved))
	m.spansLocated.WithLabelValues("unresolved").Add(float64(unresolved))
}

// ObserveIngest 记录一次 ingest
func (m *Metrics) ObserveIngest(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ingestRuns.WithLabelValues(result).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

// ObserveChat 记录一次问答
func (m *Metrics) ObserveChat(surface string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.chatRequests.WithLabelValues(surface, result).Inc()
}
