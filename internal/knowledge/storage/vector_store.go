package storage

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrCollectionNotFound = errors.New("storage: collection not found")

// Record 写入向量库的一条分块
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Source   string
	Metadata map[string]any
}

// SearchHit 检索结果，Score 为余弦相似度
type SearchHit struct {
	Record
	Score float32
}

// VectorStore 向量存储接口
type VectorStore interface {
	// EnsureCollection 集合不存在时按维度创建
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// DropCollection 删除集合，不存在时不报错
	DropCollection(ctx context.Context, collection string) error

	// HasCollection 集合是否存在
	HasCollection(ctx context.Context, collection string) (bool, error)

	// Insert 批量写入
	Insert(ctx context.Context, collection string, records []Record) error

	// Search 按相似度返回前 k 条，结果带向量；集合不存在返回 ErrCollectionNotFound
	Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error)
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]any {
	out := map[string]any{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
