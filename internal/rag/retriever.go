package rag

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/embedding"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
)

// 检索默认参数
const (
	DefaultK      = 4
	DefaultFetchK = 20
	DefaultLambda = 0.5
)

// ErrIndexNotBuilt 向量集合尚未创建，需要先执行 ingest
var ErrIndexNotBuilt = errors.New("rag: vector index has not been built, run ingest first")

// DocumentRetriever 按问题检索上下文
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string) ([]storage.SearchHit, error)
}

// RetrieverConfig 检索配置
type RetrieverConfig struct {
	Collection string
	K          int
	FetchK     int
	// Lambda 取 (0, 1]，为 1 时只看相关性，越小越偏向多样性
	Lambda float64
}

// Retriever 向量检索 + MMR 重排
type Retriever struct {
	embedder embedding.Embedder
	store    storage.VectorStore
	cfg      RetrieverConfig
}

// NewRetriever 创建检索器，未设置的参数取默认值
func NewRetriever(embedder embedding.Embedder, store storage.VectorStore, cfg RetrieverConfig) *Retriever {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.FetchK < cfg.K {
		cfg.FetchK = max(DefaultFetchK, cfg.K)
	}
	if cfg.Lambda <= 0 || cfg.Lambda > 1 {
		cfg.Lambda = DefaultLambda
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg}
}

// Retrieve 取 fetch_k 个候选，再用 MMR 选出 k 个
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]storage.SearchHit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, r.cfg.Collection, vec, r.cfg.FetchK)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return nil, ErrIndexNotBuilt
	}
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return MMR(vec, hits, r.cfg.K, r.cfg.Lambda), nil
}

// MMR 最大边际相关性选择。候选缺少向量时退化为按原始得分排序
func MMR(query []float32, hits []storage.SearchHit, k int, lambda float64) []storage.SearchHit {
	if k <= 0 || len(hits) == 0 {
		return nil
	}
	k = min(k, len(hits))

	relevance := make([]float64, len(hits))
	for i, h := range hits {
		if len(h.Vector) == len(query) && len(query) > 0 {
			relevance[i] = cosine(query, h.Vector)
		} else {
			relevance[i] = float64(h.Score)
		}
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(hits))
	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range hits {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range selected {
				if sim := similarity(hits[i].Vector, hits[j].Vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
	}

	out := make([]storage.SearchHit, len(selected))
	for i, idx := range selected {
		out[i] = hits[idx]
	}
	return out
}

func similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return cosine(a, b)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
