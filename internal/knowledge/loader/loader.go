package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
)

// SupportedExtensions 知识库支持的文件扩展名（小写）
var SupportedExtensions = []string{".txt", ".md", ".mdx"}

// IsSupported 文件名扩展名是否受支持，大小写不敏感
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Failure 单个文件的加载失败
type Failure struct {
	Source string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Source, f.Err)
}

// LoadResult 批量加载结果。失败的文件不影响其他文件
type LoadResult struct {
	Documents []chunker.Document
	Failures  []Failure
}

// LoadDir 递归加载目录下受支持的文件，结果按路径排序
func LoadDir(ctx context.Context, root string) (LoadResult, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var res LoadResult
	for _, p := range paths {
		doc, err := LoadFile(p)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Source: p, Err: err})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}

// LoadFile 加载单个文件，来源为文件路径
func LoadFile(path string) (chunker.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chunker.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return LoadBytes(path, data)
}

// LoadBytes 从内存内容构造文档，非 UTF-8 内容返回 chunker.ErrInvalidEncoding
func LoadBytes(source string, data []byte) (chunker.Document, error) {
	return chunker.NewDocument(source, data)
}
