package redis

import (
	"errors"
	"time"
)

// Config Redis 配置
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"` // host:port
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// 所有键统一加前缀，多个环境共用一个实例时避免冲突
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "chatbot:",
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("redis: addr is required")
	}
	if c.DB < 0 {
		return errors.New("redis: db must be >= 0")
	}
	if c.PoolSize < 0 || c.MinIdleConns < 0 {
		return errors.New("redis: pool sizes must be >= 0")
	}
	return nil
}
