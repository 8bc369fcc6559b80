package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/chatbot-rag/internal/pkg/minio"
	"go.uber.org/zap"
)

// MinIOStore MinIO 文件存储实现，对象键为 prefix + 文件名
type MinIOStore struct {
	client *pkgminio.Client
	prefix string
	logger *logger.Logger
}

// NewMinIOStore 创建 MinIO 文件存储并确保 bucket 存在
func NewMinIOStore(ctx context.Context, client *pkgminio.Client, prefix string, lgr *logger.Logger) (*MinIOStore, error) {
	if lgr == nil {
		lgr = logger.L()
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return &MinIOStore{client: client, prefix: prefix, logger: lgr}, nil
}

// Save 上传文件
func (s *MinIOStore) Save(ctx context.Context, name string, data []byte) (FileInfo, error) {
	safe, err := SafeName(name)
	if err != nil {
		return FileInfo{}, err
	}
	contentType := mime.TypeByExtension(path.Ext(safe))
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	if err := s.client.Put(ctx, s.prefix+safe, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return FileInfo{}, err
	}
	s.logger.WithContext(ctx).Info("kb file uploaded",
		zap.String("bucket", s.client.Bucket()),
		zap.String("name", safe),
		zap.Int("size", len(data)))
	return FileInfo{Name: safe, Size: int64(len(data))}, nil
}

// Read 下载文件
func (s *MinIOStore) Read(ctx context.Context, name string) ([]byte, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key)
	if pkgminio.IsNotFound(err) {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return data, err
}

// Delete 删除文件
func (s *MinIOStore) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if err := s.client.Remove(ctx, key); err != nil && !pkgminio.IsNotFound(err) {
		return err
	}
	return nil
}

// List 列出前缀下所有对象
func (s *MinIOStore) List(ctx context.Context) ([]FileInfo, error) {
	objs, err := s.client.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(objs))
	for _, o := range objs {
		files = append(files, FileInfo{
			Name:    strings.TrimPrefix(o.Key, s.prefix),
			Size:    o.Size,
			ModTime: o.LastModified,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Source minio://bucket/key
func (s *MinIOStore) Source(name string) string {
	return "minio://" + s.client.Bucket() + "/" + s.prefix + name
}

func (s *MinIOStore) key(name string) (string, error) {
	clean := path.Clean("/" + name)
	if name == "" || clean == "/" || clean[1:] != name {
		return "", ErrInvalidPath
	}
	return s.prefix + name, nil
}
