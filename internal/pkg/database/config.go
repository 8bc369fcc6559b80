package database

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config 数据库配置
type Config struct {
	Driver string `mapstructure:"driver"` // postgres, sqlite

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Timezone string `mapstructure:"timezone"`

	// SQLite 文件路径，测试中可用 file::memory:?cache=shared
	Path string `mapstructure:"path"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	LogLevel      string        `mapstructure:"log_level"` // silent, error, warn, info
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
}

// DefaultConfig 默认连接本地 PostgreSQL
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverPostgres,
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		DBName:          "chatbot_rag",
		SSLMode:         "disable",
		Timezone:        "Asia/Shanghai",
		Path:            "data/chatbot.db",
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
	}
}

// Validate 校验数据库配置
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.Host == "" || c.User == "" || c.DBName == "" {
			return errors.New("database host, user and dbname are required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return errors.New("database port must be between 1 and 65535")
		}
		if !slices.Contains([]string{"disable", "require", "verify-ca", "verify-full"}, c.SSLMode) {
			return errors.New("invalid SSL mode, must be one of: disable, require, verify-ca, verify-full")
		}
	case DriverSQLite:
		if c.Path == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	if !slices.Contains([]string{"silent", "error", "warn", "info"}, c.LogLevel) {
		return errors.New("invalid log level, must be one of: silent, error, warn, info")
	}
	if c.MaxIdleConns < 0 || c.MaxOpenConns < 0 {
		return errors.New("connection pool sizes must be >= 0")
	}
	return nil
}

// DSN PostgreSQL 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.Timezone)
}
