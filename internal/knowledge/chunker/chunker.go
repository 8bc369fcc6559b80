package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Method 分块方式
type Method string

const (
	// MethodAuto Markdown 文件先按标题切分，其余文件直接按窗口切分
	MethodAuto Method = "auto"
	// MethodRecursiveOnly 所有文件都只按窗口切分
	MethodRecursiveOnly Method = "recursive_only"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
	DefaultMethod       = MethodAuto
)

var (
	// ErrInvalidConfig 分块配置非法（在切分开始前返回）
	ErrInvalidConfig = errors.New("invalid chunking config")
	// ErrMultiDocumentSpans 定位区间时传入了多个文档的分块
	ErrMultiDocumentSpans = errors.New("span location requires chunks from a single document")
	// ErrInvalidEncoding 文件不是合法的 UTF-8 文本
	ErrInvalidEncoding = errors.New("file is not valid utf-8")
)

// ParseMethod 解析分块方式，空字符串返回默认值
func ParseMethod(s string) (Method, error) {
	switch Method(strings.TrimSpace(strings.ToLower(s))) {
	case "":
		return DefaultMethod, nil
	case MethodAuto:
		return MethodAuto, nil
	case MethodRecursiveOnly:
		return MethodRecursiveOnly, nil
	}
	return "", fmt.Errorf("%w: unknown chunking method %q", ErrInvalidConfig, s)
}

// Config 分块配置
type Config struct {
	ChunkSize    int    `mapstructure:"chunk_size" json:"chunk_size"`       // 每块最大字符数
	ChunkOverlap int    `mapstructure:"chunk_overlap" json:"chunk_overlap"` // 相邻块重叠字符数
	Method       Method `mapstructure:"method" json:"method"`
}

// DefaultConfig 返回默认分块配置（800 / 120 / auto）
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Method:       DefaultMethod,
	}
}

// Validate 校验分块配置
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative", ErrInvalidConfig)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be less than chunk size", ErrInvalidConfig)
	}
	if c.Method != MethodAuto && c.Method != MethodRecursiveOnly {
		return fmt.Errorf("%w: unknown chunking method %q", ErrInvalidConfig, c.Method)
	}
	return nil
}

// Document 待分块的原始文档
type Document struct {
	Source string // 来源标识（通常为文件路径）
	Text   string // 完整原文
}

// Chunk 分块结果。各阶段都返回新的 Chunk 值，不修改输入
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata 分块元数据
type Metadata struct {
	Source string `json:"source"`

	H1 string `json:"h1,omitempty"`
	H2 string `json:"h2,omitempty"`
	H3 string `json:"h3,omitempty"`

	ChunkIndex     int    `json:"chunk_index"`
	ChunkChars     int    `json:"chunk_chars"`
	ChunkingMethod Method `json:"chunking_method,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	ChunkOverlap   int    `json:"chunk_overlap,omitempty"`
	TokenCount     int    `json:"token_count,omitempty"`

	// 原文中的字节区间 [SpanStart, SpanEnd)，无法定位时为 nil
	SpanStart *int `json:"span_start"`
	SpanEnd   *int `json:"span_end"`
}

// HasSpan 是否已定位到原文区间
func (m Metadata) HasSpan() bool {
	return m.SpanStart != nil && m.SpanEnd != nil
}

// Headers 返回非空的标题上下文
func (m Metadata) Headers() map[string]string {
	headers := make(map[string]string, 3)
	if m.H1 != "" {
		headers["h1"] = m.H1
	}
	if m.H2 != "" {
		headers["h2"] = m.H2
	}
	if m.H3 != "" {
		headers["h3"] = m.H3
	}
	return headers
}

// ToMap 转换为向量库写入用的扁平 map，只包含已设置的字段
func (m Metadata) ToMap() map[string]any {
	out := map[string]any{
		"source":      m.Source,
		"chunk_index": m.ChunkIndex,
		"chunk_chars": m.ChunkChars,
	}
	for k, v := range m.Headers() {
		out[k] = v
	}
	if m.ChunkingMethod != "" {
		out["chunking_method"] = string(m.ChunkingMethod)
		out["chunk_size"] = m.ChunkSize
		out["chunk_overlap"] = m.ChunkOverlap
	}
	if m.TokenCount > 0 {
		out["token_count"] = m.TokenCount
	}
	if m.HasSpan() {
		out["span_start"] = *m.SpanStart
		out["span_end"] = *m.SpanEnd
	}
	return out
}

// clone 复制元数据，区间指针也重新分配
func (m Metadata) clone() Metadata {
	out := m
	if m.SpanStart != nil {
		v := *m.SpanStart
		out.SpanStart = &v
	}
	if m.SpanEnd != nil {
		v := *m.SpanEnd
		out.SpanEnd = &v
	}
	return out
}
