package milvus

import (
	"errors"
	"time"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

type Config struct {
	Address     string        `mapstructure:"address"` // localhost:19530
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	APIKey      string        `mapstructure:"api_key"`
	Database    string        `mapstructure:"database"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Address:     "localhost:19530",
		DialTimeout: 10 * time.Second,
	}
}

// Validate API Key 与用户名密码只能二选一
func (c *Config) Validate() error {
	switch {
	case c.Address == "":
		return errors.New("milvus: address is required")
	case c.APIKey != "" && (c.Username != "" || c.Password != ""):
		return errors.New("milvus: api_key and username/password are mutually exclusive")
	case (c.Username == "") != (c.Password == ""):
		return errors.New("milvus: username and password must be set together")
	case c.DialTimeout < 0:
		return errors.New("milvus: dial_timeout must not be negative")
	}
	return nil
}

func (c *Config) clientConfig() *milvusclient.ClientConfig {
	return &milvusclient.ClientConfig{
		Address:  c.Address,
		Username: c.Username,
		Password: c.Password,
		APIKey:   c.APIKey,
		DBName:   c.Database,
	}
}
