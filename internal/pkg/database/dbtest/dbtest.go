// Package dbtest 为仓储测试提供内存 SQLite 数据库
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
)

// New 创建当前测试独享的内存库并迁移 models
func New(t testing.TB, models ...any) *database.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Driver = database.DriverSQLite
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.Path = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.LogLevel = "silent"
	cfg.MaxOpenConns = 1

	db, err := database.New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(models...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
