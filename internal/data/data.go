package data

import (
	"context"
	"fmt"

	admindata "github.com/lk2023060901/chatbot-rag/internal/admin/data"
	"github.com/lk2023060901/chatbot-rag/internal/conf"
	convdata "github.com/lk2023060901/chatbot-rag/internal/conversation/data"
	kbdata "github.com/lk2023060901/chatbot-rag/internal/knowledge/data"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/milvus"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/minio"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	userdata "github.com/lk2023060901/chatbot-rag/internal/user/data"
	"go.uber.org/zap"
)

// Data 进程级共享资源
type Data struct {
	DB      *database.DB
	Redis   *redis.Client // redis.enabled=false 时为 nil
	Files   storage.FileStore
	Vectors storage.VectorStore
	logger  *logger.Logger
}

// Models 全部需要迁移的表
func Models() []any {
	var models []any
	models = append(models, userdata.Models()...)
	models = append(models, convdata.Models()...)
	models = append(models, admindata.Models()...)
	models = append(models, kbdata.Models()...)
	return models
}

// NewData 按配置初始化数据库、Redis、知识库文件存储与向量库。
// 返回的 cleanup 按初始化的逆序释放资源
func NewData(ctx context.Context, cfg *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{logger: log}
	var closers []func()
	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	db, err := database.New(&cfg.Database, log.Named("database"))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := db.Migrate(Models()...); err != nil {
		return fail(err)
	}
	d.DB = db

	if cfg.Redis.Enabled {
		rc, err := redis.New(&cfg.Redis, log.Named("redis"))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		d.Redis = rc
	}

	files, err := newFileStore(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	d.Files = files

	vectors, closeVectors, err := newVectorStore(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	if closeVectors != nil {
		closers = append(closers, closeVectors)
	}
	d.Vectors = vectors

	return d, cleanup, nil
}

func newFileStore(ctx context.Context, cfg *conf.Config, log *logger.Logger) (storage.FileStore, error) {
	switch cfg.KB.Storage {
	case "minio":
		client, err := minio.NewClient(&cfg.MinIO, log.Named("minio"))
		if err != nil {
			return nil, err
		}
		return storage.NewMinIOStore(ctx, client, cfg.MinIO.Prefix, log.Named("kbfile"))
	case "local":
		return storage.NewLocalStore(cfg.KB.DataDir, log.Named("kbfile"))
	}
	return nil, fmt.Errorf("kb: unknown storage %q", cfg.KB.Storage)
}

func newVectorStore(ctx context.Context, cfg *conf.Config, log *logger.Logger) (storage.VectorStore, func(), error) {
	switch cfg.VectorStore.Backend {
	case "milvus":
		client, err := milvus.New(ctx, &cfg.Milvus, log.Named("milvus"))
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := client.Close(context.Background()); err != nil {
				log.Warn("failed to close milvus client", zap.Error(err))
			}
		}
		return storage.NewMilvusStore(client, log.Named("vectorstore")), closer, nil
	case "chromem":
		store, err := storage.NewChromemStore(cfg.VectorStore.PersistPath, log.Named("vectorstore"))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("vectorstore: unknown backend %q", cfg.VectorStore.Backend)
}
