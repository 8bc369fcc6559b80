package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 发送给对话模型的消息
type Message struct {
	Role    string
	Content string
}

// ChatModel 对话模型
type ChatModel interface {
	// Complete 一次性生成完整回答
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream 流式生成，每个增量调用一次 fn；fn 返回错误时中止
	Stream(ctx context.Context, messages []Message, fn func(token string) error) error
}

// OpenAIChatConfig OpenAI 兼容对话接口配置（DeepSeek / OpenAI）
type OpenAIChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxRetries  uint64
	RetryBase   time.Duration
	// Complete 的整体超时；流式请求不受限
	Timeout time.Duration
}

// OpenAIChatModel 基于 go-openai 的 ChatModel
type OpenAIChatModel struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  uint64
	retryBase   time.Duration
	timeout     time.Duration
	logger      *logger.Logger
}

// NewOpenAIChatModel 创建对话模型
func NewOpenAIChatModel(cfg *OpenAIChatConfig, lgr *logger.Logger) (*OpenAIChatModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	log := lgr
	if log == nil {
		log = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log.Info("chat model created",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientCfg.BaseURL))

	return &OpenAIChatModel{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryBase:   base,
		timeout:     cfg.Timeout,
		logger:      log,
	}, nil
}

func (m *OpenAIChatModel) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    msgs,
		Temperature: m.temperature,
		Stream:      stream,
	}
}

func (m *OpenAIChatModel) backoff() retry.Backoff {
	return retry.WithMaxRetries(m.maxRetries, retry.NewExponential(m.retryBase))
}

// Complete 一次性生成完整回答
func (m *OpenAIChatModel) Complete(ctx context.Context, messages []Message) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	req := m.request(messages, false)
	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		var callErr error
		resp, callErr = m.client.CreateChatCompletion(ctx, req)
		if callErr != nil && isRetryable(callErr) {
			m.logger.WithContext(ctx).Warn("chat request failed, retrying", zap.Error(callErr))
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	m.logger.WithContext(ctx).Debug("chat completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// Stream 流式生成。只对建立连接阶段重试，已输出内容后不再重试
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []Message, fn func(token string) error) error {
	req := m.request(messages, true)

	var stream *openai.ChatCompletionStream
	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		var callErr error
		stream, callErr = m.client.CreateChatCompletionStream(ctx, req)
		if callErr != nil && isRetryable(callErr) {
			m.logger.WithContext(ctx).Warn("chat stream failed, retrying", zap.Error(callErr))
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := fn(token); err != nil {
			return err
		}
	}
}

// isRetryable 限流与服务端错误可以重试
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
