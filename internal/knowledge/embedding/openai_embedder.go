package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// OpenAIEmbedderConfig OpenAI 兼容接口（OpenAI / ModelScope）配置
type OpenAIEmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimension  int
	BatchSize  int
	MaxRetries uint64
	// 重试退避的起始间隔，默认 500ms
	RetryBase time.Duration
}

// OpenAIEmbedder OpenAI 兼容的 Embedder
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimension  int
	batchSize  int
	maxRetries uint64
	retryBase  time.Duration
	logger     *logger.Logger
}

// NewOpenAIEmbedder 创建 OpenAI Embedder
func NewOpenAIEmbedder(cfg *OpenAIEmbedderConfig, lgr *logger.Logger) (*OpenAIEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	log := lgr
	if log == nil {
		log = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log.Info("openai embedder created",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientCfg.BaseURL),
		zap.Int("dimension", cfg.Dimension))

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  batch,
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
		logger:     log,
	}, nil
}

// Embed 对单个文本生成向量
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// BatchEmbed 按 batchSize 分批请求
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, req)
		if callErr != nil {
			if isRetryable(callErr) {
				e.logger.WithContext(ctx).Warn("embedding request failed, retrying", zap.Error(callErr))
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		e.logger.WithContext(ctx).Error("failed to create embeddings",
			zap.Error(err),
			zap.Int("text_count", len(texts)))
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		embeddings[idx] = d.Embedding
	}

	e.logger.WithContext(ctx).Debug("embeddings created",
		zap.Int("count", len(embeddings)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return embeddings, nil
}

// Dimension 返回向量维度
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Model 返回模型名称
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// isRetryable 限流与服务端错误可以重试
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
