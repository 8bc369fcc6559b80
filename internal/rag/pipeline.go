package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrEmptyQuestion 问题为空
var ErrEmptyQuestion = errors.New("rag: question is empty")

// Answer 回答及其引用的检索结果
type Answer struct {
	Content string
	Sources []storage.SearchHit
}

// Pipeline 检索增强问答：retrieve → generate
type Pipeline struct {
	retriever DocumentRetriever
	model     ChatModel
	logger    *logger.Logger
}

// NewPipeline 创建问答流水线
func NewPipeline(retriever DocumentRetriever, model ChatModel, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.L()
	}
	return &Pipeline{retriever: retriever, model: model, logger: log.Named("rag")}
}

func (p *Pipeline) prepare(ctx context.Context, question string, history []Message, memory string) ([]Message, []storage.SearchHit, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, ErrEmptyQuestion
	}

	hits, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, nil, err
	}
	p.logger.WithContext(ctx).Debug("context retrieved",
		zap.Int("hits", len(hits)),
		zap.Int("history", len(history)))

	return BuildMessages(question, history, memory, FormatDocs(hits)), hits, nil
}

// Ask 检索并一次性生成回答
func (p *Pipeline) Ask(ctx context.Context, question string, history []Message, memory string) (*Answer, error) {
	start := time.Now()
	msgs, hits, err := p.prepare(ctx, question, history, memory)
	if err != nil {
		return nil, err
	}

	content, err := p.model.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).Info("question answered",
		zap.Int("sources", len(hits)),
		zap.Duration("elapsed", time.Since(start)))
	return &Answer{Content: strings.TrimSpace(content), Sources: hits}, nil
}

// AskStream 检索后流式生成，每个增量回调一次 fn，返回拼接后的完整回答
func (p *Pipeline) AskStream(ctx context.Context, question string, history []Message, memory string, fn func(token string) error) (*Answer, error) {
	start := time.Now()
	msgs, hits, err := p.prepare(ctx, question, history, memory)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	err = p.model.Stream(ctx, msgs, func(token string) error {
		sb.WriteString(token)
		return fn(token)
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).Info("question answered (stream)",
		zap.Int("sources", len(hits)),
		zap.Int("chars", sb.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return &Answer{Content: strings.TrimSpace(sb.String()), Sources: hits}, nil
}
