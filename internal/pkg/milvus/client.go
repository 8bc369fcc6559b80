package milvus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"
)

var ErrClientClosed = errors.New("milvus: client is closed")

// Client 对 milvusclient 的薄封装，提供集合生命周期与写入辅助
type Client struct {
	raw    *milvusclient.Client
	addr   string
	logger *logger.Logger
	closed atomic.Bool
}

func New(ctx context.Context, cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.L()
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	raw, err := milvusclient.New(ctx, cfg.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("milvus: connect %s: %w", cfg.Address, err)
	}

	log.Info("milvus connected", zap.String("address", cfg.Address), zap.String("database", cfg.Database))
	return &Client{raw: raw, addr: cfg.Address, logger: log}, nil
}

// Raw 底层客户端，用于检索等未封装的调用
func (c *Client) Raw() *milvusclient.Client {
	return c.raw
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClientClosed
	}
	has, err := c.raw.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("milvus: has collection %s: %w", name, err)
	}
	return has, nil
}

// CreateCollection 建表、在 vectorField 上建 COSINE 自动索引并等待加载完成
func (c *Client) CreateCollection(ctx context.Context, schema *entity.Schema, vectorField string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	name := schema.CollectionName
	if err := c.raw.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("milvus: create collection %s: %w", name, err)
	}

	idx := index.NewAutoIndex(entity.COSINE)
	if _, err := c.raw.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, vectorField, idx)); err != nil {
		return fmt.Errorf("milvus: create index on %s.%s: %w", name, vectorField, err)
	}

	task, err := c.raw.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("milvus: load collection %s: %w", name, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("milvus: await load of %s: %w", name, err)
	}
	return nil
}

// DropCollection 删除集合，不存在时直接返回
func (c *Client) DropCollection(ctx context.Context, name string) error {
	has, err := c.HasCollection(ctx, name)
	if err != nil || !has {
		return err
	}
	if err := c.raw.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("milvus: drop collection %s: %w", name, err)
	}
	return nil
}

// InsertColumns 列式写入后 flush，保证随后的检索可见
func (c *Client) InsertColumns(ctx context.Context, name string, cols ...column.Column) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if _, err := c.raw.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name).WithColumns(cols...)); err != nil {
		return fmt.Errorf("milvus: insert into %s: %w", name, err)
	}
	task, err := c.raw.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("milvus: flush %s: %w", name, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("milvus: await flush of %s: %w", name, err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}
	if err := c.raw.Close(ctx); err != nil {
		return fmt.Errorf("milvus: close %s: %w", c.addr, err)
	}
	c.logger.Info("milvus disconnected", zap.String("address", c.addr))
	return nil
}
