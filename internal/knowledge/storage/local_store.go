package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// LocalStore 本地目录文件存储
type LocalStore struct {
	root   string
	logger *logger.Logger
}

// NewLocalStore 创建本地存储，目录不存在时创建
func NewLocalStore(root string, lgr *logger.Logger) (*LocalStore, error) {
	if lgr == nil {
		lgr = logger.L()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", abs, err)
	}
	return &LocalStore{root: abs, logger: lgr}, nil
}

// Root 根目录
func (s *LocalStore) Root() string {
	return s.root
}

// Save 保存文件到根目录，同名覆盖
func (s *LocalStore) Save(ctx context.Context, name string, data []byte) (FileInfo, error) {
	safe, err := SafeName(name)
	if err != nil {
		return FileInfo{}, err
	}
	target := filepath.Join(s.root, safe)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return FileInfo{}, fmt.Errorf("failed to write %s: %w", safe, err)
	}
	st, err := os.Stat(target)
	if err != nil {
		return FileInfo{}, err
	}
	s.logger.WithContext(ctx).Info("kb file saved", zap.String("name", safe), zap.Int("size", len(data)))
	return FileInfo{Name: safe, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Read 读取文件
func (s *LocalStore) Read(_ context.Context, name string) ([]byte, error) {
	target, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return data, err
}

// Delete 删除文件，路径必须位于根目录内
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	target, err := s.resolve(name)
	if err != nil {
		return err
	}
	st, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.IsDir() {
		return ErrInvalidPath
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	s.logger.WithContext(ctx).Info("kb file deleted", zap.String("name", name))
	return nil
}

// List 递归列出根目录下所有文件
func (s *LocalStore) List(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Name: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Source 文件的绝对路径
func (s *LocalStore) Source(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// resolve 解析相对路径，拒绝逃逸出根目录的路径
func (s *LocalStore) resolve(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidPath
	}
	target := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(name)))
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return target, nil
}
