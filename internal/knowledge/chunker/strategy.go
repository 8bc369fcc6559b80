package chunker

import (
	"path/filepath"
	"strings"
)

// Strategy 单个文档的切分策略
type Strategy interface {
	Name() string
	Split(doc Document, splitter *TextSplitter) []Chunk
}

// PlainWindowStrategy 直接按大小/重叠窗口切分
type PlainWindowStrategy struct{}

// Name 策略名
func (PlainWindowStrategy) Name() string { return "plain_window" }

// Split 切分文档
func (PlainWindowStrategy) Split(doc Document, splitter *TextSplitter) []Chunk {
	pieces := splitter.SplitText(doc.Text)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, Chunk{
			Content:  p,
			Metadata: Metadata{Source: doc.Source},
		})
	}
	return chunks
}

// MarkdownAwareStrategy 先按 1~3 级标题切段，每段再按窗口切分
type MarkdownAwareStrategy struct{}

// Name 策略名
func (MarkdownAwareStrategy) Name() string { return "markdown_aware" }

// Split 切分文档，每个分块带上所在段落的标题上下文
func (MarkdownAwareStrategy) Split(doc Document, splitter *TextSplitter) []Chunk {
	var chunks []Chunk
	for _, sec := range splitByHeaders(doc.Text) {
		for _, p := range splitter.SplitText(sec.content) {
			chunks = append(chunks, Chunk{
				Content: p,
				Metadata: Metadata{
					Source: doc.Source,
					H1:     sec.headers[0],
					H2:     sec.headers[1],
					H3:     sec.headers[2],
				},
			})
		}
	}
	return chunks
}

// IsMarkdownSource 来源是否为 Markdown 文件（.md / .mdx，不区分大小写）
func IsMarkdownSource(source string) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".md", ".mdx":
		return true
	}
	return false
}

// SelectStrategy 根据分块方式和来源扩展名选择策略
func SelectStrategy(method Method, source string) Strategy {
	if method == MethodAuto && IsMarkdownSource(source) {
		return MarkdownAwareStrategy{}
	}
	return PlainWindowStrategy{}
}

// Segment 按配置切分文档，输出顺序与输入文档顺序一致
func Segment(docs []Document, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	splitter := NewTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	var chunks []Chunk
	for _, doc := range docs {
		if doc.Text == "" {
			continue
		}
		chunks = append(chunks, SelectStrategy(cfg.Method, doc.Source).Split(doc, splitter)...)
	}
	return chunks, nil
}
