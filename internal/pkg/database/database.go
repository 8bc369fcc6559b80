package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 对 gorm.DB 的封装
type DB struct {
	*gorm.DB
	config *Config
	logger *logger.Logger
}

// New 打开数据库连接
func New(cfg *Config, log *logger.Logger) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.L()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.Path)
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log, cfg),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected",
		zap.String("driver", cfg.Driver),
		zap.String("database", cfg.DBName),
	)

	return &DB{DB: gdb, config: cfg, logger: log}, nil
}

// Close 关闭连接
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	db.logger.Info("closing database connection")
	return sqlDB.Close()
}

// HealthCheck 检查连接是否可用
func (db *DB) HealthCheck(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Migrate 按配置执行自动迁移
func (db *DB) Migrate(models ...any) error {
	if !db.config.AutoMigrate {
		db.logger.Info("auto migration disabled")
		return nil
	}
	if err := db.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	db.logger.Info("auto migration completed", zap.Int("models", len(models)))
	return nil
}

// IsRecordNotFoundError 是否为记录不存在
func IsRecordNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateKeyError 是否为唯一约束冲突（PostgreSQL 23505 / SQLite UNIQUE）
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "UNIQUE constraint failed")
}

// Page 限制与偏移分页
func Page(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset).Limit(limit)
	}
}
