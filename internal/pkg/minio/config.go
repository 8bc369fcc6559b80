package minio

import "errors"

// Config MinIO / S3 兼容存储配置
type Config struct {
	Endpoint        string `mapstructure:"endpoint"` // host:port
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	// 对象键前缀，知识库文件存放在 {Prefix}{文件名}
	Prefix string `mapstructure:"prefix"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("minio: access key and secret key are required")
	}
	if c.Bucket == "" {
		return errors.New("minio: bucket is required")
	}
	return nil
}
