package chunker

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// Options 流水线可选步骤
type Options struct {
	IncludePreviewMetadata bool         // 写入 chunk_index / chunk_chars 等预览元数据
	IncludeSpans           bool         // 定位原文区间，只支持单个文档
	TokenCounter           TokenCounter // 可选，标注时额外写入 token_count
}

// ChunkDocuments 切分 -> 标注 -> 定位区间
//
// 配置错误和多文档区间请求都会在切分前返回。
func ChunkDocuments(docs []Document, cfg Config, opts Options) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.IncludeSpans && len(docs) != 1 {
		return nil, fmt.Errorf("%w: got %d documents", ErrMultiDocumentSpans, len(docs))
	}

	chunks, err := Segment(docs, cfg)
	if err != nil {
		return nil, err
	}

	if opts.IncludePreviewMetadata {
		chunks = Annotator{Tokens: opts.TokenCounter}.Annotate(chunks, cfg)
	}

	if opts.IncludeSpans {
		chunks, err = LocateSpans(docs[0].Text, chunks)
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// ChunkFile 读取 UTF-8 文件并生成带预览元数据和区间的分块，同时返回原文
func ChunkFile(path string, cfg Config) ([]Chunk, string, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, "", err
	}
	chunks, err := ChunkDocuments([]Document{doc}, cfg, Options{
		IncludePreviewMetadata: true,
		IncludeSpans:           true,
	})
	if err != nil {
		return nil, "", err
	}
	return chunks, doc.Text, nil
}

// ReadDocument 读取文件为文档，来源为文件路径
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewDocument(path, data)
}

// NewDocument 从字节内容构造文档，内容必须是合法 UTF-8
func NewDocument(source string, data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("%s: %w", source, ErrInvalidEncoding)
	}
	return Document{Source: source, Text: string(data)}, nil
}

// IsConfigError 是否为分块配置错误
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
