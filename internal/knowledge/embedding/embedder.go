package embedding

import (
	"context"
	"errors"
)

// DefaultBatchSize 单次请求最多携带的文本数
const DefaultBatchSize = 64

var ErrEmptyResponse = errors.New("embedding: empty response")

// Embedder 文本向量化接口
type Embedder interface {
	// Embed 对单个文本生成向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed 批量生成向量，结果与输入一一对应
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension 返回向量维度
	Dimension() int

	// Model 返回模型名称
	Model() string
}
