package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 计算文本 token 数
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter 基于 tiktoken 的 token 计数器
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter 创建 token 计数器，encoding 为空时使用 cl100k_base
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// CountTokens 返回 token 数量
func (t *TiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Annotate 写入位置与配置元数据，保留标题上下文和区间
func Annotate(chunks []Chunk, cfg Config) []Chunk {
	return Annotator{}.Annotate(chunks, cfg)
}

// Annotator 分块元数据标注器
type Annotator struct {
	Tokens TokenCounter // 可选
}

// Annotate 对同一序列、同一配置重复执行结果不变
func (a Annotator) Annotate(chunks []Chunk, cfg Config) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		md := c.Metadata.clone()
		md.ChunkIndex = i
		md.ChunkChars = runeLen(c.Content)
		md.ChunkingMethod = cfg.Method
		md.ChunkSize = cfg.ChunkSize
		md.ChunkOverlap = cfg.ChunkOverlap
		if a.Tokens != nil {
			md.TokenCount = a.Tokens.CountTokens(c.Content)
		}
		out[i] = Chunk{Content: c.Content, Metadata: md}
	}
	return out
}
