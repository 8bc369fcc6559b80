package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

// Transaction 在事务中执行 fn；fn 内通过 Conn(ctx) 取得事务连接
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			db.logger.WithContext(ctx).Debug("transaction rolled back", zap.Error(err))
			return err
		}
		return nil
	})
}

// Conn 返回上下文中的事务连接，没有事务时返回普通连接
func (db *DB) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.DB.WithContext(ctx)
}
