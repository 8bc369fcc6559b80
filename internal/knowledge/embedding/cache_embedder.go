package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	"go.uber.org/zap"
)

const defaultCachePrefix = "kb:embedding:"

// CacheEmbedder 带 redis 缓存的 Embedder 装饰器
type CacheEmbedder struct {
	embedder Embedder
	cache    *redis.Client
	ttl      time.Duration
	logger   *logger.Logger
}

// NewCacheEmbedder 创建带缓存的 Embedder；cache 为 nil 时直接透传
func NewCacheEmbedder(embedder Embedder, cache *redis.Client, ttl time.Duration, lgr *logger.Logger) *CacheEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	log := lgr
	if log == nil {
		log = logger.L()
	}
	return &CacheEmbedder{embedder: embedder, cache: cache, ttl: ttl, logger: log}
}

// Embed 对单个文本生成向量（带缓存）
func (e *CacheEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed 只对缓存未命中的文本调用底层 Embedder
func (e *CacheEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if e.cache != nil {
			if cached, err := e.getFromCache(ctx, e.cacheKey(text)); err == nil {
				results[i] = cached
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	e.logger.WithContext(ctx).Debug("batch embedding cache stats",
		zap.Int("total", len(texts)),
		zap.Int("cache_misses", len(missTexts)))

	if len(missTexts) == 0 {
		return results, nil
	}

	embeddings, err := e.embedder.BatchEmbed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResponse, len(embeddings), len(missTexts))
	}

	for i, vec := range embeddings {
		results[missIdx[i]] = vec
		if e.cache == nil {
			continue
		}
		key := e.cacheKey(missTexts[i])
		if err := e.setToCache(ctx, key, vec); err != nil {
			e.logger.WithContext(ctx).Warn("failed to cache embedding", zap.String("cache_key", key), zap.Error(err))
		}
	}
	return results, nil
}

// Dimension 返回向量维度
func (e *CacheEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

// Model 返回模型名称
func (e *CacheEmbedder) Model() string {
	return e.embedder.Model()
}

// cacheKey 模型名 + 文本 sha256
func (e *CacheEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return defaultCachePrefix + e.Model() + ":" + hex.EncodeToString(hash[:])
}

func (e *CacheEmbedder) getFromCache(ctx context.Context, key string) ([]float32, error) {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
	}
	return vec, nil
}

func (e *CacheEmbedder) setToCache(ctx context.Context, key string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, key, data, e.ttl)
}
