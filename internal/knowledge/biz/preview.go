package biz

import (
	"context"
	"errors"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/loader"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"go.uber.org/zap"
)

// Highlight 分块在原文中的位置；区间未定位时 Before 为全文，其余为空
type Highlight struct {
	Before    string `json:"before"`
	Highlight string `json:"highlight"`
	After     string `json:"after"`
}

// PreviewChunk 预览中的单个分块
type PreviewChunk struct {
	Content  string           `json:"content"`
	Metadata chunker.Metadata `json:"metadata"`
	View     Highlight        `json:"view"`
}

// Preview 文件分块预览
type Preview struct {
	Path       string         `json:"path"`
	Config     chunker.Config `json:"config"`
	Original   string         `json:"original"`
	Chunks     []PreviewChunk `json:"chunks"`
	Unresolved int            `json:"unresolved"`
}

// WithTokenCounter 预览时额外统计 token 数
func (uc *KnowledgeUseCase) WithTokenCounter(tc chunker.TokenCounter) *KnowledgeUseCase {
	uc.tokens = tc
	return uc
}

// Preview 按给定配置切分知识库中的单个文件，不写入向量库
func (uc *KnowledgeUseCase) Preview(ctx context.Context, path string, cfg chunker.Config) (*Preview, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrKBInvalidChunkConfig, err.Error())
	}

	data, err := uc.files.Read(ctx, path)
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		return nil, apperrors.New(apperrors.ErrKBFileNotFound, path)
	case errors.Is(err, storage.ErrInvalidPath):
		return nil, apperrors.New(apperrors.ErrInvalidParams, "invalid file path")
	case err != nil:
		return nil, apperrors.Wrap(err, apperrors.ErrKBStorageFailed)
	}

	doc, err := loader.LoadBytes(uc.files.Source(path), data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrKBEncodingFailed, path)
	}

	chunks, err := chunker.ChunkDocuments([]chunker.Document{doc}, cfg, chunker.Options{
		IncludePreviewMetadata: true,
		IncludeSpans:           true,
		TokenCounter:           uc.tokens,
	})
	if err != nil {
		if chunker.IsConfigError(err) {
			return nil, apperrors.New(apperrors.ErrKBInvalidChunkConfig, err.Error())
		}
		return nil, apperrors.Wrap(err, apperrors.ErrKBChunkingFailed)
	}

	out := &Preview{Path: path, Config: cfg, Original: doc.Text, Chunks: make([]PreviewChunk, len(chunks))}
	for i, c := range chunks {
		if !c.Metadata.HasSpan() {
			out.Unresolved++
		}
		out.Chunks[i] = PreviewChunk{Content: c.Content, Metadata: c.Metadata, View: Split(doc.Text, c.Metadata)}
	}

	uc.logger.WithContext(ctx).Debug("kb file previewed",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Int("unresolved", out.Unresolved))
	return out, nil
}

// Split 按分块区间把原文拆成三段
func Split(text string, md chunker.Metadata) Highlight {
	if !md.HasSpan() {
		return Highlight{Before: text}
	}
	start, end := *md.SpanStart, *md.SpanEnd
	if start < 0 || end > len(text) || start > end {
		return Highlight{Before: text}
	}
	return Highlight{Before: text[:start], Highlight: text[start:end], After: text[end:]}
}
