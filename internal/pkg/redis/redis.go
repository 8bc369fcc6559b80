package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNil 键不存在
var ErrNil = redis.Nil

// IsNil 是否为键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Client Redis 客户端封装，所有键自动带上配置的前缀
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	logger *logger.Logger
}

// New 创建客户端并做一次 Ping
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.L()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, logger: log}, nil
}

// NewFromClient 包装已有的 go-redis 客户端（测试中配合 miniredis）
func NewFromClient(rdb redis.UniversalClient, prefix string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.L()
	}
	return &Client{rdb: rdb, prefix: prefix, logger: log}
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Get 读取字符串值，键不存在时返回 ErrNil
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if err != nil && !IsNil(err) {
		c.logger.WithContext(ctx).Warn("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// Set 写入值，expiration 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	err := c.rdb.Set(ctx, c.key(key), value, expiration).Err()
	if err != nil {
		c.logger.WithContext(ctx).Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Result()
}

// IncrWithExpire 自增计数，首次创建时设置过期时间，用于固定窗口限流
func (c *Client) IncrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.key(key)
	n, err := c.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, k, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
