// Package app 按配置组装各模块，供 cmd/server 与 cmd/ragctl 共用
package app

import (
	"context"
	"fmt"

	adminbiz "github.com/lk2023060901/chatbot-rag/internal/admin/biz"
	admindata "github.com/lk2023060901/chatbot-rag/internal/admin/data"
	adminservice "github.com/lk2023060901/chatbot-rag/internal/admin/service"
	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/conf"
	convbiz "github.com/lk2023060901/chatbot-rag/internal/conversation/biz"
	convdata "github.com/lk2023060901/chatbot-rag/internal/conversation/data"
	convservice "github.com/lk2023060901/chatbot-rag/internal/conversation/service"
	"github.com/lk2023060901/chatbot-rag/internal/data"
	kbbiz "github.com/lk2023060901/chatbot-rag/internal/knowledge/biz"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	kbdata "github.com/lk2023060901/chatbot-rag/internal/knowledge/data"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/embedding"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/ingest"
	kbservice "github.com/lk2023060901/chatbot-rag/internal/knowledge/service"
	"github.com/lk2023060901/chatbot-rag/internal/lgapi"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/workerpool"
	"github.com/lk2023060901/chatbot-rag/internal/rag"
	"github.com/lk2023060901/chatbot-rag/internal/server"
	userbiz "github.com/lk2023060901/chatbot-rag/internal/user/biz"
	userdata "github.com/lk2023060901/chatbot-rag/internal/user/data"
	userservice "github.com/lk2023060901/chatbot-rag/internal/user/service"
)

// Version 服务版本，构建时可用 -ldflags 覆盖
var Version = "0.1.0"

// App 组装好的依赖
type App struct {
	Config   *conf.Config
	Data     *data.Data
	Metrics  *metrics.Metrics
	JWT      *auth.JWTManager
	Chunking chunker.Config
	Tokens   chunker.TokenCounter // chunking.token_encoding 为空时为 nil

	Users         *userbiz.UserUseCase
	Conversations *convbiz.ConversationUseCase
	Audit         *adminbiz.AuditUseCase
	Settings      *adminbiz.SettingsUseCase
	Knowledge     *kbbiz.KnowledgeUseCase
	Ingestor      *ingest.Ingestor

	// withChat 为 false 时为 nil
	Pipeline *rag.Pipeline

	logger *logger.Logger
}

// New 初始化数据层与所有用例。withChat 为 false 时不创建对话模型（命令行工具）
func New(ctx context.Context, cfg *conf.Config, log *logger.Logger, withChat bool) (*App, func(), error) {
	d, cleanup, err := data.NewData(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	chunking, err := cfg.Chunking.ToChunker()
	if err != nil {
		return fail(err)
	}
	var tokens chunker.TokenCounter
	if cfg.Chunking.TokenEncoding != "" {
		tc, err := chunker.NewTiktokenCounter(cfg.Chunking.TokenEncoding)
		if err != nil {
			return fail(err)
		}
		tokens = tc
	}

	m := metrics.New()
	pool, err := workerpool.New(&cfg.Ingest.Pool, log.Named("workerpool"))
	if err != nil {
		return fail(err)
	}
	release := cleanup
	cleanup = func() {
		pool.Release()
		release()
	}

	embedder, err := newEmbedder(cfg, d, log)
	if err != nil {
		return fail(err)
	}

	ingestor, err := ingest.NewIngestor(ingest.Config{
		Collection: cfg.VectorStore.Collection,
		Chunking:   chunking,
		Tokens:     tokens,
	}, d.Files, d.Vectors, embedder, pool, m, log)
	if err != nil {
		return fail(err)
	}

	users := userbiz.NewUserUseCase(userdata.NewUserRepo(d.DB), log)
	convs := convbiz.NewConversationUseCase(convdata.NewConversationRepo(d.DB), log)
	audit := adminbiz.NewAuditUseCase(admindata.NewAuditRepo(d.DB), log)
	settings := adminbiz.NewSettingsUseCase(admindata.NewSettingRepo(d.DB), log)
	kb := kbbiz.NewKnowledgeUseCase(d.Files, kbdata.NewFileMetaRepo(d.DB), settings, ingestor, cfg.KB.MaxUploadSize, log).
		WithTokenCounter(tokens)

	a := &App{
		Config:        cfg,
		Data:          d,
		Metrics:       m,
		JWT:           auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL),
		Chunking:      chunking,
		Tokens:        tokens,
		Users:         users,
		Conversations: convs,
		Audit:         audit,
		Settings:      settings,
		Knowledge:     kb,
		Ingestor:      ingestor,
		logger:        log,
	}

	if withChat {
		model, err := rag.NewOpenAIChatModel(&rag.OpenAIChatConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxRetries:  cfg.LLM.MaxRetries,
			Timeout:     cfg.LLM.Timeout,
		}, log)
		if err != nil {
			return fail(fmt.Errorf("llm: %w", err))
		}
		retriever := rag.NewRetriever(embedder, d.Vectors, rag.RetrieverConfig{Collection: cfg.VectorStore.Collection})
		a.Pipeline = rag.NewPipeline(retriever, model, log)
	}
	return a, cleanup, nil
}

// newEmbedder 启用 Redis 时包一层向量缓存
func newEmbedder(cfg *conf.Config, d *data.Data, log *logger.Logger) (embedding.Embedder, error) {
	base, err := embedding.NewOpenAIEmbedder(&embedding.OpenAIEmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		BatchSize:  cfg.Embedding.BatchSize,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if d.Redis == nil {
		return base, nil
	}
	return embedding.NewCacheEmbedder(base, d.Redis, cfg.Embedding.CacheTTL, log), nil
}

// HTTPServer 组装 Web API 与外部 API，需要以 withChat=true 创建
func (a *App) HTTPServer() *server.HTTPServer {
	cfg := a.Config
	return server.NewHTTPServer(cfg, a.logger, a.JWT, a.Data.Redis, a.Metrics, server.Services{
		User:         userservice.NewUserService(a.Users, a.JWT, a.Audit, a.logger),
		Conversation: convservice.NewConversationService(a.Conversations, a.Pipeline, a.Users, a.Audit, a.Metrics, a.logger),
		Knowledge:    kbservice.NewKnowledgeService(a.Knowledge, a.Chunking, a.Audit, a.logger),
		Admin:        adminservice.NewAdminService(a.Audit, a.Settings, a.logger),
		LangGraph: lgapi.NewHandler(lgapi.Config{
			Version:   Version,
			TokenName: cfg.Auth.APITokenName,
		}, a.Users, a.Conversations, a.Pipeline, a.Audit, a.Metrics, a.logger),
		Health: a.Data.DB,
	})
}
