package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidPath  = errors.New("storage: invalid file path")
	ErrFileNotFound = errors.New("storage: file not found")
)

// FileInfo 知识库文件信息，Name 为相对知识库根的路径
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileStore 知识库原始文件存储
type FileStore interface {
	// Save 保存文件，name 只保留基本文件名
	Save(ctx context.Context, name string, data []byte) (FileInfo, error)

	// Read 读取文件全部内容
	Read(ctx context.Context, name string) ([]byte, error)

	// Delete 删除文件，文件不存在时不报错
	Delete(ctx context.Context, name string) error

	// List 列出所有文件，按名称排序
	List(ctx context.Context) ([]FileInfo, error)

	// Source 文件在分块元数据中使用的来源标识
	Source(name string) string
}

// SafeName 取上传文件名的基本名，拒绝空名与 . / ..
func SafeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", ErrInvalidPath
	}
	return base, nil
}
