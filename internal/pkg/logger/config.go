package logger

import (
	"errors"
	"slices"
	"strings"
)

// Config 日志配置
type Config struct {
	Level            string     `mapstructure:"level"`  // debug, info, warn, error
	Format           string     `mapstructure:"format"` // json, console
	Output           string     `mapstructure:"output"` // console, file, both
	File             FileConfig `mapstructure:"file"`
	EnableStacktrace bool       `mapstructure:"enable_stacktrace"`
}

// FileConfig 文件输出与轮转配置
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // 天
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig 默认输出到控制台
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "console",
		Output: "console",
		File: FileConfig{
			Filename:   "logs/chatbot-rag.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

var validLevels = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}

// Validate 校验日志配置
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, strings.ToLower(c.Level)) {
		return errors.New("invalid log level, must be one of: " + strings.Join(validLevels, ", "))
	}
	if c.Format != "json" && c.Format != "console" {
		return errors.New("invalid log format, must be 'json' or 'console'")
	}

	switch c.Output {
	case "console":
	case "file", "both":
		if c.File.Filename == "" {
			return errors.New("log filename is required when output is 'file' or 'both'")
		}
		if c.File.MaxSize <= 0 || c.File.MaxAge <= 0 {
			return errors.New("log file max_size and max_age must be greater than 0")
		}
		if c.File.MaxBackups < 0 {
			return errors.New("log file max_backups must be >= 0")
		}
	default:
		return errors.New("invalid log output, must be 'console', 'file' or 'both'")
	}
	return nil
}
